package monitor

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"go.klb.dev/clipwatch/internal/eventbus"
)

// expectedPublishes models the change filter: content must exceed minSize and
// differ from the last published value.
func expectedPublishes(seq []string, minSize int) []string {
	var out []string
	last := ""
	for _, s := range seq {
		if len(s) <= minSize || s == last {
			continue
		}
		last = s
		out = append(out, s)
	}
	return out
}

var samples = []string{"", "a", "abc", "hello", "hello world", "clipboard text"}

func drain(rx *eventbus.Receiver[Event]) ([]string, error) {
	var got []string
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		ev, err := rx.Recv(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return got, nil
		}
		if err != nil {
			return got, err
		}
		got = append(got, ev.Content)
	}
}

func TestChangeFilterProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	params.MaxSize = 20

	properties := gopter.NewProperties(params)

	properties.Property("publishes exactly the filtered distinct changes in order", prop.ForAll(
		func(seq []string, minSize int) bool {
			sel := newFakeSelection("")
			opts := clipboardOnly(sel, minSize)
			opts.Capacity = 64
			c, err := New(opts)
			if err != nil {
				return false
			}
			defer c.Close()
			rx := c.Subscribe()
			c.Start()

			for _, s := range seq {
				sel.deliver(t, s)
			}
			got, err := drain(rx)
			if err != nil {
				return false
			}
			return slices.Equal(got, expectedPublishes(seq, minSize))
		},
		gen.SliceOf(gen.IntRange(0, len(samples)-1).Map(func(i int) string { return samples[i] })),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}
