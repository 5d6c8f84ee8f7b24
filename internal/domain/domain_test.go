package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizcore/internal/domain"
)

func TestQuizPublicProjection(t *testing.T) {
	quiz := domain.Quiz{
		QuizID:      "quiz-1",
		Subject:     "Math",
		Title:       "Basics",
		Description: "arithmetic",
		Questions: []domain.Question{
			{
				QuestionID:   "q1",
				Text:         "2+2?",
				Options:      []string{"3", "4", "5", "6"},
				CorrectIndex: 1,
				Marks:        decimal.NewFromInt(2),
				Explanation:  "second option",
			},
		},
	}

	pub := quiz.Public()

	require.Equal(t, quiz.QuizID, pub.QuizID)
	require.Equal(t, quiz.Subject, pub.Subject)
	require.Equal(t, quiz.Title, pub.Title)
	require.Len(t, pub.Questions, 1)
	require.Equal(t, "q1", pub.Questions[0].QuestionID)
	require.Equal(t, []string{"3", "4", "5", "6"}, pub.Questions[0].Options)

	// The projection is deterministic: projecting twice yields identical
	// results with no mutation in between.
	require.Equal(t, pub, quiz.Public())
}

// The public projection must not leak the answer key through any encoder.
func TestPublicQuestionHasNoAnswerKey(t *testing.T) {
	q := domain.Question{
		QuestionID:   "q1",
		Text:         "2+2?",
		Options:      []string{"3", "4", "5", "6"},
		CorrectIndex: 1,
		Marks:        decimal.NewFromInt(2),
		Explanation:  "second option",
	}

	b, err := json.Marshal(q.Public())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))

	for name := range fields {
		require.NotContains(t, []string{"CorrectIndex", "correct_index", "Explanation", "explanation"}, name)
	}
}
