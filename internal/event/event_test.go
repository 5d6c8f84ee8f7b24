package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/quizcore/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a single subscriber receives only its event": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("submission.graded"),
						eventWithName("leaderboard.updated"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"submission.graded"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 1)
				assert.Equal(t, "submission.graded", out.received["s1"][0].Name())
			},
		},

		"two subscribers of one event both receive it": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("submission.graded"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"submission.graded"}},
						{name: "s2", subscribeTo: []string{"submission.graded"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 1)
				assert.Len(t, out.received["s2"], 1)
			},
		},

		"a subscriber of two events receives both": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("submission.graded"),
						eventWithName("leaderboard.updated"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"submission.graded", "leaderboard.updated"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 2)
			},
		},

		"no subscriber means the event is dropped silently": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("submission.graded"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"leaderboard.updated"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Empty(t, out.received["s1"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			b := event.NewBus()

			var mu sync.Mutex
			received := make(map[string][]event.Event)

			for _, s := range in.subscribers {
				s := s
				for _, name := range s.subscribeTo {
					b.Subscribe(name, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						received[s.name] = append(received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}

			b.Stop()

			tt.assert(t, outputs{received: received})
		})
	}
}

func TestBus_HandlerPanicDoesNotStopTheBus(t *testing.T) {
	b := event.NewBus()

	var mu sync.Mutex
	var handled int

	b.Subscribe("submission.graded", func(ctx context.Context, e event.Event) error {
		panic("boom")
	})
	b.Subscribe("submission.graded", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName("submission.graded"))
	b.Publish(context.Background(), eventWithName("submission.graded"))
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, handled)
}

type subscriber struct {
	name        string
	subscribeTo []string
}

type eventWithName string

func (e eventWithName) Name() string { return string(e) }
