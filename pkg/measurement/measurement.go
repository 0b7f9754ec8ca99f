// Package measurement defines the core data model for a single performance
// observation attached to a commit, and the collection of observations
// stored in one commit's git note.
package measurement

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel validation errors.
var (
	ErrEmptyName           = errors.New("measurement name must not be empty")
	ErrNameHasWhitespace   = errors.New("measurement name must not contain whitespace")
	ErrNameHasEquals       = errors.New("measurement name must not contain '='")
	ErrNameStartsWithDigit = errors.New("measurement name must not start with a digit")
	ErrKeyInvalid          = errors.New("measurement key must not contain whitespace or '='")
	ErrValueInvalid        = errors.New("measurement value must not contain whitespace or '='")
	ErrEmptyKey            = errors.New("measurement key must not be empty")

	// ErrMalformedLine marks a single note line that failed to parse. The
	// caller drops only this line and continues with the rest of the note.
	ErrMalformedLine = errors.New("malformed measurement line")
)

// Measurement is a single observation bound to a commit.
//
// Epoch is an opaque baseline identifier; Timestamp is advisory wall-clock
// time, never authoritative for ordering; Value is any finite float,
// including negative numbers.
type Measurement struct {
	Name      string
	KeyValues map[string]string
	Timestamp float64
	Value     float64
	Epoch     uint32
}

// New builds a Measurement after validating name and key/value characters
// against the codec's character rules (§4.1, Open Question 4): no
// whitespace, no '=', in name/keys/values.
func New(epoch uint32, name string, timestamp, value float64, kv map[string]string) (Measurement, error) {
	if err := ValidateName(name); err != nil {
		return Measurement{}, err
	}

	for k, v := range kv {
		if err := ValidateKey(k); err != nil {
			return Measurement{}, err
		}

		if err := ValidateValue(v); err != nil {
			return Measurement{}, err
		}
	}

	return Measurement{
		Epoch:     epoch,
		Name:      name,
		Timestamp: timestamp,
		Value:     value,
		KeyValues: kv,
	}, nil
}

// ValidateName rejects names that are empty, contain whitespace, contain
// '=', or start with a digit. The last rule isn't cosmetic: Serialize packs
// epoch and name together with no separator, so a digit-leading name would
// make Deserialize's epochBoundary scan misparse part of the name as epoch.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}

	if name[0] >= '0' && name[0] <= '9' {
		return fmt.Errorf("%q: %w", name, ErrNameStartsWithDigit)
	}

	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%q: %w", name, ErrNameHasWhitespace)
	}

	if strings.Contains(name, "=") {
		return fmt.Errorf("%q: %w", name, ErrNameHasEquals)
	}

	return nil
}

// ValidateKey rejects keys that are empty or contain whitespace or '='.
func ValidateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if strings.ContainsAny(key, " \t\r\n=") {
		return fmt.Errorf("%q: %w", key, ErrKeyInvalid)
	}

	return nil
}

// ValidateValue rejects values that contain whitespace or '='.
func ValidateValue(value string) error {
	if strings.ContainsAny(value, " \t\r\n=") {
		return fmt.Errorf("%q: %w", value, ErrValueInvalid)
	}

	return nil
}

// CommitInfo is the commit metadata accompanying a CommitMeasurements.
type CommitInfo struct {
	SHA    string
	Title  string
	Author string
}

// CommitMeasurements is the ordered collection of Measurements attached to
// one commit. It is created by append and never rewritten; the git note
// body is the sole persistent representation.
type CommitMeasurements struct {
	Commit       CommitInfo
	Measurements []Measurement
}

// CommitSummary is the post-aggregation view of one commit for one
// measurement name. It is derived, never stored.
type CommitSummary struct {
	SHA   string
	Value float64
	Epoch uint32
	N     int
}
