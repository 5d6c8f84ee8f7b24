// Package grading computes deterministic scores for quiz submissions.
// It is pure: no storage, no clock, no I/O.
package grading

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/quizcore/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// AnswerInput is one submitted answer, before grading. SelectedIndex is nil
// when the student left the question blank.
type AnswerInput struct {
	QuestionID    string
	SelectedIndex *int
}

// Graded is the outcome of grading one answer set against one quiz.
type Graded struct {
	Answers       []domain.Answer
	TotalMarks    decimal.Decimal
	ObtainedMarks decimal.Decimal
	Percentage    decimal.Decimal
}

// Grade scores answers against the quiz's current questions.
//
// An answer referencing a question id not on the quiz is tolerated as a
// zero-scoring answer rather than an error: the id may be stale after an
// edit, and one bad reference must not void the rest of the submission.
// TotalMarks always covers every question currently on the quiz, whether
// answered or not.
func Grade(quiz domain.Quiz, answers []AnswerInput) Graded {
	byID := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		byID[q.QuestionID] = q
	}

	g := Graded{
		Answers:       make([]domain.Answer, 0, len(answers)),
		TotalMarks:    decimal.Zero,
		ObtainedMarks: decimal.Zero,
	}

	for _, in := range answers {
		a := domain.Answer{
			QuestionID:    in.QuestionID,
			SelectedIndex: in.SelectedIndex,
			MarksObtained: decimal.Zero,
		}

		if q, ok := byID[in.QuestionID]; ok {
			a.Correct = in.SelectedIndex != nil && *in.SelectedIndex == q.CorrectIndex
			if a.Correct {
				a.MarksObtained = marksOf(q)
			}
		}

		g.ObtainedMarks = g.ObtainedMarks.Add(a.MarksObtained)
		g.Answers = append(g.Answers, a)
	}

	for _, q := range quiz.Questions {
		g.TotalMarks = g.TotalMarks.Add(marksOf(q))
	}

	if g.TotalMarks.IsPositive() {
		g.Percentage = g.ObtainedMarks.Div(g.TotalMarks).Mul(hundred).Round(2)
	} else {
		g.Percentage = decimal.Zero
	}

	return g
}

func marksOf(q domain.Question) decimal.Decimal {
	if q.Marks.IsPositive() {
		return q.Marks
	}

	return decimal.NewFromInt(1)
}
