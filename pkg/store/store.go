// Package store implements the storage writer: validating, encoding, and
// appending new measurements to HEAD's note on the current process's
// write-ref (§4.10).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/gpconfig"
	"github.com/kaihowl/gitperf/pkg/measurement"
	"github.com/kaihowl/gitperf/pkg/refs"
)

// Writer appends measurements to HEAD's note on this process's write-ref.
type Writer struct {
	driver   *gitdriver.Driver
	protocol *refs.Protocol
	cfg      *gpconfig.Config
	now      func() time.Time
}

// New returns a Writer over driver and protocol, resolving epochs from cfg.
func New(driver *gitdriver.Driver, protocol *refs.Protocol, cfg *gpconfig.Config) *Writer {
	return &Writer{driver: driver, protocol: protocol, cfg: cfg, now: time.Now}
}

// Item is one measurement to add, as BatchAdd's caller supplies it.
type Item struct {
	Name      string
	Value     float64
	KeyValues map[string]string
}

// Add validates, encodes, and appends one measurement to HEAD's note.
func (w *Writer) Add(ctx context.Context, name string, value float64, keyValues map[string]string) error {
	return w.BatchAdd(ctx, []Item{{Name: name, Value: value, KeyValues: keyValues}})
}

// BatchAdd adds every item to HEAD's note through the protocol's write-ref,
// which AppendMeasurement resolves again for each item (§4.10). Items
// cannot carry duplicate keys, since KeyValues is a map; the codec's
// warn-once for duplicate keys fires only in Deserialize.
func (w *Writer) BatchAdd(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	head, err := w.driver.RevParse(ctx, "HEAD")
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}

	for _, item := range items {
		if err := measurement.ValidateName(item.Name); err != nil {
			return fmt.Errorf("add %q: %w", item.Name, err)
		}

		for k, v := range item.KeyValues {
			if err := measurement.ValidateKey(k); err != nil {
				return fmt.Errorf("add %q: %w", item.Name, err)
			}

			if err := measurement.ValidateValue(v); err != nil {
				return fmt.Errorf("add %q: %w", item.Name, err)
			}
		}

		epoch, _, err := w.cfg.Epoch(item.Name)
		if err != nil {
			return fmt.Errorf("add %q: %w", item.Name, err)
		}

		m, err := measurement.New(epoch, item.Name, float64(w.now().UnixNano())/1e9, item.Value, item.KeyValues)
		if err != nil {
			return fmt.Errorf("add %q: %w", item.Name, err)
		}

		line := measurement.Serialize(m)

		if err := w.protocol.AppendMeasurement(ctx, head, line); err != nil {
			return fmt.Errorf("append %q to write-ref: %w", item.Name, err)
		}
	}

	return nil
}
