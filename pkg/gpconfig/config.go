// Package gpconfig loads the hierarchical TOML configuration that binds
// per-measurement policy (epoch, sigma, aggregation, dispersion method,
// minimum relative deviation, unit) to every stage of the pipeline, with
// parent-table fallback and repo-local write-back for epoch bumps (§4.4).
package gpconfig

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kaihowl/gitperf/internal/warnonce"
)

// DefaultBackoffMaxElapsedSeconds is the built-in ceiling on push/fetch
// retry duration when no config sets backoff.max_elapsed_seconds.
const DefaultBackoffMaxElapsedSeconds = 60

// AggregateBy selects how same-commit measurements collapse to one value.
type AggregateBy string

// Built-in aggregation choices (case-insensitive on read).
const (
	AggregateMin    AggregateBy = "min"
	AggregateMax    AggregateBy = "max"
	AggregateMedian AggregateBy = "median"
	AggregateMean   AggregateBy = "mean"
)

// DispersionMethod selects stddev or mad as the z-score denominator.
type DispersionMethod string

// Built-in dispersion choices (case-insensitive on read).
const (
	DispersionStddev DispersionMethod = "stddev"
	DispersionMAD    DispersionMethod = "mad"
)

// Built-in policy defaults (§4.4), applied by callers after lookup misses.
const (
	DefaultSigma           = 4.0
	DefaultMinMeasurements = 2
	DefaultAggregateBy     = AggregateMin
	DefaultDispersion      = DispersionStddev
)

// recognizedKeys is every key lookup ever resolves, at either the flat
// parent-default level or inside a per-name override table (§4.4, §6).
var recognizedKeys = map[string]bool{
	"epoch":                  true,
	"sigma":                  true,
	"min_measurements":       true,
	"aggregate_by":           true,
	"dispersion_method":      true,
	"min_relative_deviation": true,
	"unit":                   true,
}

// warnUnknownKeys walks a parsed measurement table and emits a one-shot
// warning for every key that is neither a recognized config key nor a
// nested per-name table (§6: "unknown keys are ignored with a one-shot
// warning"). A key can't be told apart from a measurement name by syntax
// alone, so a nested table is always assumed to be a per-name override and
// its own keys are checked instead; only scalar/array entries at either
// level are checked against recognizedKeys directly.
func warnUnknownKeys(path string, m map[string]any) {
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			warnUnknownKeysIn(path, k, nested)

			continue
		}

		if recognizedKeys[k] {
			continue
		}

		warnonce.Do("config:unknown-key:"+path+":"+k, func() {
			slog.Warn("ignoring unknown config key", "path", path, "key", k)
		})
	}
}

// warnUnknownKeysIn checks the keys of a per-name override table.
func warnUnknownKeysIn(path, name string, m map[string]any) {
	for k := range m {
		if recognizedKeys[k] {
			continue
		}

		warnonce.Do("config:unknown-key:"+path+":"+name+"."+k, func() {
			slog.Warn("ignoring unknown config key", "path", path, "measurement", name, "key", k)
		})
	}
}

// rawDocument mirrors the two-level TOML shape: a typed backoff table plus
// an untyped measurement table, since "measurement" holds both flat parent
// defaults and nested per-name override tables side by side.
type rawDocument struct {
	Backoff struct {
		MaxElapsedSeconds *uint64 `toml:"max_elapsed_seconds"`
	} `toml:"backoff"`
	Measurement map[string]any `toml:"measurement"`
}

// Config is the merged view of the system and repo-local configuration
// files, repo values overriding system values.
type Config struct {
	backoffMaxElapsedSeconds uint64
	measurement              map[string]any
}

// SystemPath returns the default system config path,
// ${XDG_CONFIG_HOME:-~/.config}/git-perf/config.toml.
func SystemPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}

		base = filepath.Join(home, ".config")
	}

	return filepath.Join(base, "git-perf", "config.toml")
}

// RepoPath returns the repo-local config path, "<repoRoot>/.gitperfconfig".
func RepoPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".gitperfconfig")
}

// Load reads the system and repo-local config files (either or both may be
// absent) and merges them, repo overriding system. A present file with a
// TOML syntax error fails with its path and location.
func Load(systemPath, repoPath string) (*Config, error) {
	sys, err := loadOne(systemPath)
	if err != nil {
		return nil, err
	}

	repo, err := loadOne(repoPath)
	if err != nil {
		return nil, err
	}

	merged := deepMerge(toAny(sys.Measurement), toAny(repo.Measurement))

	maxElapsed := uint64(DefaultBackoffMaxElapsedSeconds)
	if repo.Backoff.MaxElapsedSeconds != nil {
		maxElapsed = *repo.Backoff.MaxElapsedSeconds
	} else if sys.Backoff.MaxElapsedSeconds != nil {
		maxElapsed = *sys.Backoff.MaxElapsedSeconds
	}

	return &Config{
		backoffMaxElapsedSeconds: maxElapsed,
		measurement:              merged,
	}, nil
}

func loadOne(path string) (rawDocument, error) {
	var doc rawDocument

	if path == "" {
		return doc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}

		return doc, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &doc); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			row, col := derr.Position()

			return doc, fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
		}

		return doc, fmt.Errorf("parse config %s: %w", path, err)
	}

	warnUnknownKeys(path, doc.Measurement)

	return doc, nil
}

func toAny(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}

// deepMerge overlays src onto dst, recursing into nested tables and
// letting src's scalars win. Neither argument is mutated.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}

	for k, v := range src {
		existing, ok := out[k]
		if !ok {
			out[k] = v

			continue
		}

		existingTable, existingIsTable := existing.(map[string]any)
		incomingTable, incomingIsTable := v.(map[string]any)

		if existingIsTable && incomingIsTable {
			out[k] = deepMerge(existingTable, incomingTable)
		} else {
			out[k] = v
		}
	}

	return out
}

// BackoffMaxElapsed returns the configured ceiling on push/fetch retry.
func (c *Config) BackoffMaxElapsed() time.Duration {
	return time.Duration(c.backoffMaxElapsedSeconds) * time.Second
}

// lookup implements measurement."<name>".key → measurement.key (§4.4). The
// bool reports whether any value was found at either level.
func (c *Config) lookup(name, key string) (any, bool) {
	if perName, ok := c.measurement[name].(map[string]any); ok {
		if v, ok := perName[key]; ok {
			return v, true
		}
	}

	if v, ok := c.measurement[key]; ok {
		if _, isTable := v.(map[string]any); !isTable {
			return v, true
		}
	}

	return nil, false
}

// Epoch returns the configured epoch for name, and whether one is set.
func (c *Config) Epoch(name string) (uint32, bool, error) {
	v, ok := c.lookup(name, "epoch")
	if !ok {
		return 0, false, nil
	}

	s, ok := v.(string)
	if !ok || len(s) != 8 {
		return 0, false, fmt.Errorf("measurement %q: epoch must be an 8-char lowercase hex string, got %v", name, v)
	}

	n, err := strconv.ParseUint(strings.ToLower(s), 16, 32)
	if err != nil || s != strings.ToLower(s) {
		return 0, false, fmt.Errorf("measurement %q: epoch must be 8-char lowercase hex, got %q", name, s)
	}

	return uint32(n), true, nil
}

// Sigma returns the configured sigma threshold for name, and whether one
// is set.
func (c *Config) Sigma(name string) (float64, bool, error) {
	return c.lookupFloat(name, "sigma")
}

// MinRelativeDeviation returns the configured gate percentage for name.
func (c *Config) MinRelativeDeviation(name string) (float64, bool, error) {
	v, ok, err := c.lookupFloat(name, "min_relative_deviation")
	if err != nil || !ok {
		return v, ok, err
	}

	if v < 0 {
		return 0, false, fmt.Errorf("measurement %q: min_relative_deviation must be >= 0, got %v", name, v)
	}

	return v, true, nil
}

func (c *Config) lookupFloat(name, key string) (float64, bool, error) {
	v, ok := c.lookup(name, key)
	if !ok {
		return 0, false, nil
	}

	f, valid := asFloat(v)
	if !valid || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("measurement %q: %s must be a finite number, got %v", name, key, v)
	}

	return f, true, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// MinMeasurements returns the configured minimum number of measurements
// (head plus tail) for name.
func (c *Config) MinMeasurements(name string) (uint16, bool, error) {
	v, ok := c.lookup(name, "min_measurements")
	if !ok {
		return 0, false, nil
	}

	n, valid := asFloat(v)
	if !valid || n != float64(int64(n)) || n < 2 || n > 65535 {
		return 0, false, fmt.Errorf("measurement %q: min_measurements must be a u16 >= 2, got %v", name, v)
	}

	return uint16(n), true, nil
}

// AggregateByFor returns the configured aggregation mode for name.
func (c *Config) AggregateByFor(name string) (AggregateBy, bool, error) {
	v, ok := c.lookup(name, "aggregate_by")
	if !ok {
		return "", false, nil
	}

	s, valid := v.(string)
	if !valid {
		return "", false, fmt.Errorf("measurement %q: aggregate_by must be a string, got %v", name, v)
	}

	switch AggregateBy(strings.ToLower(s)) {
	case AggregateMin, AggregateMax, AggregateMedian, AggregateMean:
		return AggregateBy(strings.ToLower(s)), true, nil
	default:
		return "", false, fmt.Errorf("measurement %q: aggregate_by must be one of min,max,median,mean, got %q", name, s)
	}
}

// DispersionMethodFor returns the configured dispersion method for name.
func (c *Config) DispersionMethodFor(name string) (DispersionMethod, bool, error) {
	v, ok := c.lookup(name, "dispersion_method")
	if !ok {
		return "", false, nil
	}

	s, valid := v.(string)
	if !valid {
		return "", false, fmt.Errorf("measurement %q: dispersion_method must be a string, got %v", name, v)
	}

	switch DispersionMethod(strings.ToLower(s)) {
	case DispersionStddev, DispersionMAD:
		return DispersionMethod(strings.ToLower(s)), true, nil
	default:
		return "", false, fmt.Errorf("measurement %q: dispersion_method must be stddev or mad, got %q", name, s)
	}
}

// Unit returns the configured display unit for name.
func (c *Config) Unit(name string) (string, bool, error) {
	v, ok := c.lookup(name, "unit")
	if !ok {
		return "", false, nil
	}

	s, valid := v.(string)
	if !valid {
		return "", false, fmt.Errorf("measurement %q: unit must be a string, got %v", name, v)
	}

	return s, true, nil
}

// BumpEpoch writes a fresh random 8-hex epoch to measurement."<name>".epoch
// in the repo-local config file at repoPath, creating the file and its
// tables if absent. The rewrite is a full reformat of the file (best
// effort; comments are not preserved), which the write-back contract
// explicitly allows.
func BumpEpoch(repoPath, name string) (string, error) {
	tree := map[string]any{}

	if data, err := os.ReadFile(repoPath); err == nil {
		if uerr := toml.Unmarshal(data, &tree); uerr != nil {
			return "", fmt.Errorf("parse config %s: %w", repoPath, uerr)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read config %s: %w", repoPath, err)
	}

	measurementTable, ok := tree["measurement"].(map[string]any)
	if !ok {
		measurementTable = map[string]any{}
	}

	nameTable, ok := measurementTable[name].(map[string]any)
	if !ok {
		nameTable = map[string]any{}
	}

	newEpoch := fmt.Sprintf("%08x", rand.Uint32())
	nameTable["epoch"] = newEpoch
	measurementTable[name] = nameTable
	tree["measurement"] = measurementTable

	out, err := toml.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("marshal config %s: %w", repoPath, err)
	}

	if err := os.WriteFile(repoPath, out, 0o644); err != nil {
		return "", fmt.Errorf("write config %s: %w", repoPath, err)
	}

	return newEpoch, nil
}
