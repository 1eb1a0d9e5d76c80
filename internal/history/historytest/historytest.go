// Package historytest holds the behaviour every history.Store must share.
package historytest

import (
	"context"
	"fmt"
	"os"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"go.klb.dev/clipwatch/internal/history"
)

// Record is the payload used by the contract tests.
type Record struct {
	N    int    `json:"n"`
	Text string `json:"text"`
}

func rec(n int) Record { return Record{N: n, Text: fmt.Sprintf("record %d", n)} }

// Opener opens a store rooted in dir. Opening the same dir twice must reach
// the same data.
type Opener func(t *testing.T, dir string) history.Store[Record]

// Run exercises open against the shared contract.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	fresh := func(t *testing.T) history.Store[Record] {
		t.Helper()
		s := open(t, t.TempDir())
		t.Cleanup(func() { s.Close() })
		return s
	}

	t.Run("EmptyLoad", func(t *testing.T) {
		s := fresh(t)
		assertRecords(t, s)
	})

	t.Run("PutKeepsInsertionOrder", func(t *testing.T) {
		s := fresh(t)
		for i := 1; i <= 3; i++ {
			must(t, s.Put(ctx, rec(i)))
		}
		assertRecords(t, s, rec(1), rec(2), rec(3))
	})

	t.Run("SaveAppends", func(t *testing.T) {
		s := fresh(t)
		must(t, s.Save(ctx, []Record{rec(1), rec(2)}))
		must(t, s.Save(ctx, nil))
		must(t, s.Save(ctx, []Record{rec(3)}))
		assertRecords(t, s, rec(1), rec(2), rec(3))
	})

	t.Run("ShrinkDropsOldest", func(t *testing.T) {
		s := fresh(t)
		must(t, s.Save(ctx, []Record{rec(1), rec(2), rec(3)}))
		must(t, s.ShrinkTo(ctx, 10))
		assertRecords(t, s, rec(1), rec(2), rec(3))
		must(t, s.ShrinkTo(ctx, 3))
		assertRecords(t, s, rec(1), rec(2), rec(3))
		must(t, s.ShrinkTo(ctx, 1))
		assertRecords(t, s, rec(3))
		must(t, s.ShrinkTo(ctx, 0))
		assertRecords(t, s)
	})

	t.Run("Clear", func(t *testing.T) {
		s := fresh(t)
		must(t, s.Save(ctx, []Record{rec(1), rec(2)}))
		must(t, s.Clear(ctx))
		assertRecords(t, s)
		must(t, s.Put(ctx, rec(4)))
		assertRecords(t, s, rec(4))
	})

	t.Run("Reopen", func(t *testing.T) {
		dir := t.TempDir()
		s := open(t, dir)
		must(t, s.Save(ctx, []Record{rec(1), rec(2)}))
		must(t, s.Close())

		s = open(t, dir)
		defer s.Close()
		assertRecords(t, s, rec(1), rec(2))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := fresh(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := s.Put(cctx, rec(1)); err == nil {
			t.Fatal("Put succeeded with a canceled context")
		}
		assertRecords(t, s)
	})

	t.Run("MatchesModel", func(t *testing.T) {
		runModel(t, open)
	})
}

// runModel applies random operation sequences to a store and to a plain
// slice, and checks they agree after every step.
func runModel(t *testing.T, open Opener) {
	ctx := context.Background()
	base := t.TempDir()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	params.MaxSize = 25
	properties := gopter.NewProperties(params)

	properties.Property("store agrees with an in-memory slice", prop.ForAll(
		func(ops []int) bool {
			dir, err := os.MkdirTemp(base, "model-*")
			if err != nil {
				return false
			}
			s := open(t, dir)
			defer s.Close()

			var model []Record
			for i, op := range ops {
				switch {
				case op < 10:
					err = s.Put(ctx, rec(i))
					model = append(model, rec(i))
				case op < 14:
					err = s.ShrinkTo(ctx, op-10)
					model = history.Shrink(model, op-10)
				case op < 18:
					batch := []Record{rec(i), rec(-i)}
					err = s.Save(ctx, batch)
					model = append(model, batch...)
				default:
					err = s.Clear(ctx)
					model = nil
				}
				if err != nil {
					return false
				}
				got, err := s.Load(ctx)
				if err != nil || !slices.Equal(got, model) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 18)),
	))

	properties.TestingRun(t)
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func assertRecords(t *testing.T, s history.Store[Record], want ...Record) {
	t.Helper()
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("records = %v, want %v", got, want)
	}
}
