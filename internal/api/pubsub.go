package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizcore/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}
)

// notifySubmissionGraded pushes the grading summary to the submitting
// student's channel.
func (a *API) notifySubmissionGraded(ctx context.Context, e domain.EventSubmissionGraded) error {
	return a.publishNotification(ctx, e.Summary.StudentID, e.Name(), toSummary(e.Summary))
}

// notifyLeaderboardUpdated fans the new ranking out to every student on it.
func (a *API) notifyLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.StudentID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, studentID, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:student:%s", a.prefix, studentID), b).Err()
}
