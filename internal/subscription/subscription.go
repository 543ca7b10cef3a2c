// Package subscription holds live subscriptions and the ordered registry
// used to replay them after a reconnect.
package subscription

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rickgao/dbn-live/internal/dbn"
)

// Limits enforced at the client boundary.
const (
	MaxSymbols   = 2000
	MaxSymbolLen = 1024
)

// maxStart is 2200-01-01T00:00:00Z, the latest replay start accepted.
var maxStart = time.Unix(7258118400, 0).UTC()

// Errors
var (
	ErrEmptyDataset   = errors.New("dataset is required")
	ErrNoSymbols      = errors.New("symbols must not be empty")
	ErrTooManySymbols = fmt.Errorf("symbol count exceeds %d", MaxSymbols)
	ErrEmptySymbol    = errors.New("symbol must not be empty")
	ErrSymbolTooLong  = fmt.Errorf("symbol exceeds %d bytes", MaxSymbolLen)
	ErrStartRange     = errors.New("replay start out of range")
)

// Subscription is an immutable subscription request as accepted by the
// gateway.
type Subscription struct {
	dataset  string
	schema   dbn.Schema
	stypeIn  dbn.SType
	symbols  []string
	start    time.Time // zero when not replaying
	snapshot bool
}

// New builds a live subscription. At most one of start and snapshot may be
// used; pass the zero time for no intraday replay.
func New(dataset string, schema dbn.Schema, stypeIn dbn.SType, symbols []string, start time.Time, snapshot bool) (Subscription, error) {
	if err := Validate(dataset, symbols); err != nil {
		return Subscription{}, err
	}
	if !start.IsZero() {
		if snapshot {
			return Subscription{}, errors.New("snapshot and replay start are mutually exclusive")
		}
		if start.Before(time.Unix(0, 0)) || start.After(maxStart) {
			return Subscription{}, fmt.Errorf("%w: %s", ErrStartRange, start.Format(time.RFC3339Nano))
		}
	}
	return Subscription{
		dataset:  dataset,
		schema:   schema,
		stypeIn:  stypeIn,
		symbols:  slices.Clone(symbols),
		start:    start,
		snapshot: snapshot,
	}, nil
}

// Validate checks the dataset and symbol list.
func Validate(dataset string, symbols []string) error {
	if dataset == "" {
		return ErrEmptyDataset
	}
	if len(symbols) == 0 {
		return ErrNoSymbols
	}
	if len(symbols) > MaxSymbols {
		return fmt.Errorf("%w: got %d", ErrTooManySymbols, len(symbols))
	}
	for i, s := range symbols {
		if s == "" {
			return fmt.Errorf("%w: index %d", ErrEmptySymbol, i)
		}
		if len(s) > MaxSymbolLen {
			return fmt.Errorf("%w: index %d", ErrSymbolTooLong, i)
		}
	}
	return nil
}

func (s Subscription) Dataset() string { return s.dataset }
func (s Subscription) Schema() dbn.Schema { return s.schema }
func (s Subscription) STypeIn() dbn.SType { return s.stypeIn }
func (s Subscription) Snapshot() bool { return s.snapshot }
func (s Subscription) Symbols() []string { return slices.Clone(s.symbols) }
func (s Subscription) SymbolCount() int { return len(s.symbols) }

// Start returns the intraday replay start and whether one was requested.
func (s Subscription) Start() (time.Time, bool) {
	return s.start, !s.start.IsZero()
}

// StartNanos returns the replay start in ns since epoch. It is 0 both for
// no replay and for a replay from the epoch; use Start to tell them apart.
func (s Subscription) StartNanos() uint64 {
	if s.start.IsZero() {
		return 0
	}
	return uint64(s.start.UnixNano())
}

func (s Subscription) String() string {
	switch {
	case s.snapshot:
		return fmt.Sprintf("%s/%s/%s %d symbols (snapshot)", s.dataset, s.schema, s.stypeIn, len(s.symbols))
	case !s.start.IsZero():
		return fmt.Sprintf("%s/%s/%s %d symbols from %s", s.dataset, s.schema, s.stypeIn, len(s.symbols), s.start.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s/%s/%s %d symbols", s.dataset, s.schema, s.stypeIn, len(s.symbols))
}
