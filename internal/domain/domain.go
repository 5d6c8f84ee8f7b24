package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NumOptions is the option count every question must carry.
const NumOptions = 4

// Quiz owns its questions: they have no existence outside the quiz, and
// every question mutation rewrites the owning quiz as a unit.
type Quiz struct {
	QuizID      string
	Subject     string
	Title       string
	Description string
	CreatedBy   string
	Questions   []Question
	CreateTime  time.Time
	UpdateTime  time.Time
}

type Question struct {
	QuestionID   string          `json:"question_id"`
	Text         string          `json:"text"`
	Options      []string        `json:"options"`
	CorrectIndex int             `json:"correct_index"`
	Marks        decimal.Decimal `json:"marks"`
	Explanation  string          `json:"explanation,omitempty"`
}

// PublicQuestion is the student-facing projection of a Question. It has no
// correct-index or explanation field at all, so an answer key can never
// leak through serialization.
type PublicQuestion struct {
	QuestionID string
	Text       string
	Options    []string
	Marks      decimal.Decimal
}

// Public projects a question into its student-facing shape.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		QuestionID: q.QuestionID,
		Text:       q.Text,
		Options:    q.Options,
		Marks:      q.Marks,
	}
}

// PublicQuiz is a quiz as served to students before submitting.
type PublicQuiz struct {
	QuizID      string
	Subject     string
	Title       string
	Description string
	Questions   []PublicQuestion
}

// Public projects a quiz and all its questions into the student-facing shape.
func (q Quiz) Public() PublicQuiz {
	pub := PublicQuiz{
		QuizID:      q.QuizID,
		Subject:     q.Subject,
		Title:       q.Title,
		Description: q.Description,
		Questions:   make([]PublicQuestion, 0, len(q.Questions)),
	}
	for _, qq := range q.Questions {
		pub.Questions = append(pub.Questions, qq.Public())
	}

	return pub
}

// Student is a registered quiz taker. Admins are students with RoleAdmin.
type Student struct {
	StudentID  string
	Name       string
	Email      string
	Role       string
	CreateTime time.Time
}

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Actor is a verified identity performing an operation. Services authorize
// against the actor they are handed, never against ambient request state.
type Actor struct {
	StudentID string
	Role      string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Submission is the single grading record for a (student, quiz) pair.
// It is created once by grading and never updated.
type Submission struct {
	SubmissionID    string
	StudentID       string
	QuizID          string
	Answers         []Answer
	TotalMarks      decimal.Decimal
	ObtainedMarks   decimal.Decimal
	DurationSeconds *int
	CreateTime      time.Time
}

// Answer is one graded answer within a submission. SelectedIndex is nil
// when the student left the question unanswered.
type Answer struct {
	QuestionID    string          `json:"question_id"`
	SelectedIndex *int            `json:"selected_index"`
	Correct       bool            `json:"correct"`
	MarksObtained decimal.Decimal `json:"marks_obtained"`
}

// Summary is the result of grading a submission.
type Summary struct {
	SubmissionID  string
	QuizID        string
	StudentID     string
	TotalMarks    decimal.Decimal
	ObtainedMarks decimal.Decimal
	Percentage    decimal.Decimal
}

// Leaderboard lists students of one quiz by obtained marks, best first.
type Leaderboard struct {
	QuizID  string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	StudentID string
	Marks     float64
}
