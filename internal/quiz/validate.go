package quiz

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
)

// NewQuestion is the caller-supplied shape of a question before it gets an
// id. Marks may be zero, in which case it defaults to 1.
type NewQuestion struct {
	Text         string
	Options      []string
	CorrectIndex int
	Marks        decimal.Decimal
	Explanation  string
}

func validateHeader(subject, title string) error {
	if strings.TrimSpace(subject) == "" {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("subject must not be empty"))
	}
	if strings.TrimSpace(title) == "" {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("title must not be empty"))
	}

	return nil
}

// validateQuestion checks one question. pos is the 1-based position used in
// error messages so the caller can locate the offending question.
func validateQuestion(pos int, q NewQuestion) error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %d: text must not be empty", pos))
	}
	if len(q.Options) != domain.NumOptions {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %d: exactly %d options required, got %d", pos, domain.NumOptions, len(q.Options)))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= domain.NumOptions {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %d: correct index must be between 0 and %d, got %d", pos, domain.NumOptions-1, q.CorrectIndex))
	}
	if q.Marks.IsNegative() {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %d: marks must be positive", pos))
	}

	return nil
}

// materialize turns a validated NewQuestion into a domain question with the
// given id, applying the default mark.
func materialize(id string, q NewQuestion) domain.Question {
	marks := q.Marks
	if !marks.IsPositive() {
		marks = decimal.NewFromInt(1)
	}

	return domain.Question{
		QuestionID:   id,
		Text:         q.Text,
		Options:      q.Options,
		CorrectIndex: q.CorrectIndex,
		Marks:        marks,
		Explanation:  q.Explanation,
	}
}
