package domain

const (
	EventNameSubmissionGraded   = "submission.graded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSubmissionGraded struct {
	Summary Summary
}

func (EventSubmissionGraded) Name() string { return EventNameSubmissionGraded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
