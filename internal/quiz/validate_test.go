package quiz

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizcore/internal/errors"
)

func TestValidateQuestion(t *testing.T) {
	valid := NewQuestion{
		Text:         "2+2?",
		Options:      []string{"3", "4", "5", "6"},
		CorrectIndex: 1,
		Marks:        decimal.NewFromInt(2),
	}

	tests := map[string]struct {
		mutate  func(q *NewQuestion)
		wantErr string
	}{
		"valid question passes": {
			mutate: func(q *NewQuestion) {},
		},
		"empty text rejected": {
			mutate:  func(q *NewQuestion) { q.Text = "  " },
			wantErr: "question 3: text must not be empty",
		},
		"three options rejected": {
			mutate:  func(q *NewQuestion) { q.Options = q.Options[:3] },
			wantErr: "question 3: exactly 4 options required, got 3",
		},
		"five options rejected": {
			mutate:  func(q *NewQuestion) { q.Options = append(q.Options, "7") },
			wantErr: "question 3: exactly 4 options required, got 5",
		},
		"negative correct index rejected": {
			mutate:  func(q *NewQuestion) { q.CorrectIndex = -1 },
			wantErr: "question 3: correct index must be between 0 and 3, got -1",
		},
		"correct index past last option rejected": {
			mutate:  func(q *NewQuestion) { q.CorrectIndex = 4 },
			wantErr: "question 3: correct index must be between 0 and 3, got 4",
		},
		"negative marks rejected": {
			mutate:  func(q *NewQuestion) { q.Marks = decimal.NewFromInt(-1) },
			wantErr: "question 3: marks must be positive",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			q := valid
			q.Options = append([]string{}, valid.Options...)
			tt.mutate(&q)

			err := validateQuestion(3, q)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			require.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			require.Equal(t, tt.wantErr, errors.Convert(err).Message)
		})
	}
}

func TestValidateHeader(t *testing.T) {
	require.NoError(t, validateHeader("Math", "Basics"))

	err := validateHeader("", "Basics")
	require.True(t, errors.IsCode(err, errors.CodeInvalidArgument))

	err = validateHeader("Math", "   ")
	require.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
}

func TestMaterialize(t *testing.T) {
	q := materialize("q1", NewQuestion{
		Text:         "2+2?",
		Options:      []string{"3", "4", "5", "6"},
		CorrectIndex: 1,
	})

	require.Equal(t, "q1", q.QuestionID)
	require.True(t, decimal.NewFromInt(1).Equal(q.Marks), "marks default to 1")

	q = materialize("q2", NewQuestion{
		Text:         "2+2?",
		Options:      []string{"3", "4", "5", "6"},
		CorrectIndex: 1,
		Marks:        decimal.NewFromFloat(2.5),
	})
	require.True(t, decimal.NewFromFloat(2.5).Equal(q.Marks))
}
