package subscription

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/dbn-live/internal/dbn"
)

func mustNew(t *testing.T, dataset string, symbols ...string) Subscription {
	t.Helper()
	s, err := New(dataset, dbn.SchemaTrades, dbn.STypeRawSymbol, symbols, time.Time{}, false)
	require.NoError(t, err)
	return s
}

func TestRegistry_PreservesInsertionOrder(t *testing.T) {
	r := NewRegistry()
	a := mustNew(t, "GLBX.MDP3", "ESZ4")
	b := mustNew(t, "XNAS.ITCH", "AAPL", "MSFT")
	c := mustNew(t, "GLBX.MDP3", "ESZ4") // duplicates are kept

	r.Add(a)
	r.Add(b)
	r.Add(c)

	got := r.List()
	require.Len(t, got, 3)
	assert.Equal(t, "GLBX.MDP3", got[0].Dataset())
	assert.Equal(t, []string{"AAPL", "MSFT"}, got[1].Symbols())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_ListIsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add(mustNew(t, "GLBX.MDP3", "ESZ4"))

	snap := r.List()
	r.Add(mustNew(t, "GLBX.MDP3", "NQZ4"))

	assert.Len(t, snap, 1)
	assert.Len(t, r.List(), 2)
}

func TestRegistry_ConcurrentAdd(t *testing.T) {
	r := NewRegistry()

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r.Add(mustNew(t, "GLBX.MDP3", fmt.Sprintf("w%d-%03d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	subs := r.List()
	require.Len(t, subs, writers*perWriter)

	// Per-writer order survives interleaving.
	last := make(map[string]string)
	for _, s := range subs {
		sym := s.Symbols()[0]
		writer := sym[:strings.Index(sym, "-")]
		assert.Less(t, last[writer], sym)
		last[writer] = sym
	}
}

func TestNew_Validation(t *testing.T) {
	tooMany := make([]string, MaxSymbols+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("S%d", i)
	}
	atLimit := tooMany[:MaxSymbols]

	tests := []struct {
		name    string
		dataset string
		symbols []string
		wantErr error
	}{
		{"valid", "GLBX.MDP3", []string{"ESZ4"}, nil},
		{"at symbol limit", "GLBX.MDP3", atLimit, nil},
		{"empty dataset", "", []string{"ESZ4"}, ErrEmptyDataset},
		{"nil symbols", "GLBX.MDP3", nil, ErrNoSymbols},
		{"empty symbols", "GLBX.MDP3", []string{}, ErrNoSymbols},
		{"empty entry", "GLBX.MDP3", []string{"ESZ4", ""}, ErrEmptySymbol},
		{"too many", "GLBX.MDP3", tooMany, ErrTooManySymbols},
		{"too long", "GLBX.MDP3", []string{strings.Repeat("X", MaxSymbolLen+1)}, ErrSymbolTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dataset, dbn.SchemaMbp1, dbn.STypeRawSymbol, tt.symbols, time.Time{}, false)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_ReplayStart(t *testing.T) {
	start := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	s, err := New("XNAS.ITCH", dbn.SchemaTrades, dbn.STypeRawSymbol, []string{"AAPL"}, start, false)
	require.NoError(t, err)

	got, ok := s.Start()
	assert.True(t, ok)
	assert.True(t, got.Equal(start))
	assert.Equal(t, uint64(start.UnixNano()), s.StartNanos())

	_, err = New("XNAS.ITCH", dbn.SchemaTrades, dbn.STypeRawSymbol, []string{"AAPL"}, time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC), false)
	assert.ErrorIs(t, err, ErrStartRange)

	_, err = New("XNAS.ITCH", dbn.SchemaTrades, dbn.STypeRawSymbol, []string{"AAPL"}, time.Date(2201, 1, 1, 0, 0, 0, 0, time.UTC), false)
	assert.ErrorIs(t, err, ErrStartRange)

	_, err = New("XNAS.ITCH", dbn.SchemaTrades, dbn.STypeRawSymbol, []string{"AAPL"}, start, true)
	assert.Error(t, err)
}

func TestSubscription_Immutable(t *testing.T) {
	symbols := []string{"ESZ4", "NQZ4"}
	s := mustNew(t, "GLBX.MDP3", symbols...)

	symbols[0] = "CLZ4"
	out := s.Symbols()
	out[1] = "GCZ4"

	assert.Equal(t, []string{"ESZ4", "NQZ4"}, s.Symbols())
}
