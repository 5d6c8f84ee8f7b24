package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
	"github.com/victornm/quizcore/internal/event"
	"github.com/victornm/quizcore/internal/leaderboard"
)

func TestService_RecordResult(t *testing.T) {
	s := makeService(t)

	err := s.RecordResult(context.Background(), domain.EventSubmissionGraded{
		Summary: domain.Summary{
			SubmissionID:  "sub-1",
			QuizID:        "quiz-1",
			StudentID:     "st-1",
			TotalMarks:    decimal.NewFromInt(5),
			ObtainedMarks: decimal.NewFromFloat(3.5),
			Percentage:    decimal.NewFromInt(70),
		},
	})
	require.NoError(t, err)

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		QuizID: "quiz-1",
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		QuizID: "quiz-1",
		Entries: []domain.LeaderboardEntry{
			{StudentID: "st-1", Marks: 3.5},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_GetLeaderboard_RanksBestFirst(t *testing.T) {
	s := makeService(t)

	for _, e := range []struct {
		student string
		marks   float64
	}{
		{"st-low", 1},
		{"st-high", 4},
		{"st-mid", 2.5},
	} {
		err := s.RecordResult(context.Background(), domain.EventSubmissionGraded{
			Summary: domain.Summary{
				QuizID:        "quiz-1",
				StudentID:     e.student,
				ObtainedMarks: decimal.NewFromFloat(e.marks),
			},
		})
		require.NoError(t, err)
	}

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{QuizID: "quiz-1"})
	require.NoError(t, err)

	require.Equal(t, []domain.LeaderboardEntry{
		{StudentID: "st-high", Marks: 4},
		{StudentID: "st-mid", Marks: 2.5},
		{StudentID: "st-low", Marks: 1},
	}, resp.Entries)
}

func TestService_GetLeaderboard_NotFound(t *testing.T) {
	s := makeService(t)

	_, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{QuizID: "no-such-quiz"})
	require.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestService_PublishThrottling(t *testing.T) {
	type (
		inputs struct {
			graded []domain.EventSubmissionGraded
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"one graded submission publishes one leaderboard update": {
			arrange: func() inputs {
				return inputs{
					graded: []domain.EventSubmissionGraded{
						{Summary: domain.Summary{QuizID: "quiz-1", StudentID: "st-1", ObtainedMarks: decimal.NewFromInt(2)}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1)
				require.Equal(t, domain.Leaderboard{
					QuizID: "quiz-1",
					Entries: []domain.LeaderboardEntry{
						{StudentID: "st-1", Marks: 2},
					},
				}, out.publishedEvents[0].Leaderboard)
			},
		},

		"two quizzes publish independently": {
			arrange: func() inputs {
				return inputs{
					graded: []domain.EventSubmissionGraded{
						{Summary: domain.Summary{QuizID: "quiz-1", StudentID: "st-1", ObtainedMarks: decimal.NewFromInt(2)}},
						{Summary: domain.Summary{QuizID: "quiz-2", StudentID: "st-2", ObtainedMarks: decimal.NewFromInt(3)}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2)
			},
		},

		"a burst on one quiz collapses into one publish": {
			arrange: func() inputs {
				return inputs{
					graded: []domain.EventSubmissionGraded{
						{Summary: domain.Summary{QuizID: "quiz-1", StudentID: "st-1", ObtainedMarks: decimal.NewFromInt(2)}},
						{Summary: domain.Summary{QuizID: "quiz-1", StudentID: "st-2", ObtainedMarks: decimal.NewFromInt(3)}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, withEventBus(eb))

			for _, e := range in.graded {
				require.NoError(t, s.RecordResult(context.Background(), e))
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
