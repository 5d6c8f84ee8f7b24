package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
	"github.com/victornm/quizcore/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service maintains a per-quiz ranking of students by obtained marks in a
// redis sorted set. It feeds off submission.graded events, so the ranking
// is eventually consistent with the submission store.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameSubmissionGraded, func(ctx context.Context, e event.Event) error {
		return s.RecordResult(ctx, e.(domain.EventSubmissionGraded))
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID string
}

// GetLeaderboard returns the quiz's ranking, best first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(req.QuizID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: quiz=%s", req.QuizID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			StudentID: z.Member.(string),
			Marks:     z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// RecordResult writes the student's obtained marks into the quiz ranking.
// A student appears once per quiz, mirroring the one-submission rule.
func (s *Service) RecordResult(ctx context.Context, e domain.EventSubmissionGraded) error {
	sum := e.Summary

	if err := s.redis.ZAdd(ctx, s.leaderboardKey(sum.QuizID), redis.Z{
		Score:  sum.ObtainedMarks.InexactFloat64(),
		Member: sum.StudentID,
	}).Err(); err != nil {
		return fmt.Errorf("record result: %w", err)
	}

	return s.schedulePublish(ctx, sum.QuizID)
}

// schedulePublish publishes leaderboard changes at most once per interval
// per quiz. Bursts of graded submissions (a class finishing together)
// collapse into a single published update.
func (s *Service) schedulePublish(ctx context.Context, quizID string) error {
	ok, err := s.redis.SetNX(ctx, s.publishTimeKey(quizID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publish(ctx, quizID)
}

func (s *Service) publish(ctx context.Context, quizID string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%s: %w", quizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.publishTimeKey(quizID), time.Now().UnixMilli(), publishInterval).Err()
}

func (s *Service) leaderboardKey(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s:leaderboard", s.prefix, quizID)
}

func (s *Service) publishTimeKey(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s:published", s.prefix, quizID)
}
