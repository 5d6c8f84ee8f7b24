package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service owns the quiz aggregate: header fields plus the ordered question
// sequence stored as one json column. Every question mutation rewrites the
// owning quiz row as a unit.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

type CreateQuizRequest struct {
	Actor       domain.Actor
	Subject     string
	Title       string
	Description string
	Questions   []NewQuestion
}

// CreateQuiz validates the whole request before touching the store, so a
// bad question at any position persists nothing.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if err := requireAdmin(req.Actor); err != nil {
		return nil, err
	}

	if err := validateHeader(req.Subject, req.Title); err != nil {
		return nil, err
	}
	for i, q := range req.Questions {
		if err := validateQuestion(i+1, q); err != nil {
			return nil, err
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate quiz ID: %w", err)
	}

	now := time.Now()
	quiz := &domain.Quiz{
		QuizID:      id.String(),
		Subject:     req.Subject,
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   req.Actor.StudentID,
		Questions:   make([]domain.Question, 0, len(req.Questions)),
		CreateTime:  now,
		UpdateTime:  now,
	}
	for _, q := range req.Questions {
		qid, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate question ID: %w", err)
		}
		quiz.Questions = append(quiz.Questions, materialize(qid.String(), q))
	}

	qj, err := json.Marshal(quiz.Questions)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}

	const stmt = `
INSERT INTO quizzes (quiz_id, subject, title, description, created_by, questions, create_time, update_time)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $7);`

	if _, err := s.db.Exec(ctx, stmt, quiz.QuizID, quiz.Subject, quiz.Title, quiz.Description, quiz.CreatedBy, qj, now); err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	return quiz, nil
}

type AddQuestionRequest struct {
	Actor    domain.Actor
	QuizID   string
	Question NewQuestion
}

// AddQuestion appends one question to the quiz and rewrites the quiz row.
func (s *Service) AddQuestion(ctx context.Context, req AddQuestionRequest) (*domain.Question, error) {
	if err := requireAdmin(req.Actor); err != nil {
		return nil, err
	}

	if err := validateQuestion(1, req.Question); err != nil {
		return nil, err
	}

	qid, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate question ID: %w", err)
	}
	question := materialize(qid.String(), req.Question)

	err = s.mutateQuestions(ctx, req.QuizID, func(questions []domain.Question) ([]domain.Question, error) {
		return append(questions, question), nil
	})
	if err != nil {
		return nil, err
	}

	return &question, nil
}

type UpdateQuestionRequest struct {
	Actor      domain.Actor
	QuizID     string
	QuestionID string

	// Supplied fields are merged onto the existing question; nil means keep.
	Text         *string
	Options      []string
	CorrectIndex *int
	Marks        *decimal.Decimal
	Explanation  *string
}

// UpdateQuestion applies a shallow merge of the supplied fields onto an
// existing question, validating supplied values first.
func (s *Service) UpdateQuestion(ctx context.Context, req UpdateQuestionRequest) (*domain.Question, error) {
	if err := requireAdmin(req.Actor); err != nil {
		return nil, err
	}

	if req.Options != nil && len(req.Options) != domain.NumOptions {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("exactly %d options required, got %d", domain.NumOptions, len(req.Options)))
	}
	if req.CorrectIndex != nil && (*req.CorrectIndex < 0 || *req.CorrectIndex >= domain.NumOptions) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("correct index must be between 0 and %d, got %d", domain.NumOptions-1, *req.CorrectIndex))
	}
	if req.Marks != nil && !req.Marks.IsPositive() {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("marks must be positive"))
	}

	var updated domain.Question
	err := s.mutateQuestions(ctx, req.QuizID, func(questions []domain.Question) ([]domain.Question, error) {
		i := indexOf(questions, req.QuestionID)
		if i < 0 {
			return nil, errors.New(errors.CodeNotFound,
				errors.WithMessagef("question not found: quiz=%s question=%s", req.QuizID, req.QuestionID))
		}

		q := questions[i]
		if req.Text != nil {
			q.Text = *req.Text
		}
		if req.Options != nil {
			q.Options = req.Options
		}
		if req.CorrectIndex != nil {
			q.CorrectIndex = *req.CorrectIndex
		}
		if req.Marks != nil {
			q.Marks = *req.Marks
		}
		if req.Explanation != nil {
			q.Explanation = *req.Explanation
		}

		questions[i] = q
		updated = q
		return questions, nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

type DeleteQuestionRequest struct {
	Actor      domain.Actor
	QuizID     string
	QuestionID string
}

// DeleteQuestion removes one question from the quiz's sequence.
func (s *Service) DeleteQuestion(ctx context.Context, req DeleteQuestionRequest) error {
	if err := requireAdmin(req.Actor); err != nil {
		return err
	}

	return s.mutateQuestions(ctx, req.QuizID, func(questions []domain.Question) ([]domain.Question, error) {
		i := indexOf(questions, req.QuestionID)
		if i < 0 {
			return nil, errors.New(errors.CodeNotFound,
				errors.WithMessagef("question not found: quiz=%s question=%s", req.QuizID, req.QuestionID))
		}

		return append(questions[:i], questions[i+1:]...), nil
	})
}

// ListSubjects returns the distinct subjects across all quizzes.
func (s *Service) ListSubjects(ctx context.Context) ([]string, error) {
	const stmt = `SELECT DISTINCT subject FROM quizzes ORDER BY subject;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	subjects, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (string, error) {
		var subject string
		err := r.Scan(&subject)
		return subject, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect subjects: %w", err)
	}

	return subjects, nil
}

type GetQuizzesForSubjectRequest struct {
	Subject string
	// QuizID narrows the result to a single quiz under the subject.
	QuizID string
}

// GetQuizzesForSubject returns student-facing quizzes: every question is the
// public projection, which carries no correct index.
func (s *Service) GetQuizzesForSubject(ctx context.Context, req GetQuizzesForSubjectRequest) ([]domain.PublicQuiz, error) {
	if req.QuizID != "" {
		quiz, err := s.GetQuiz(ctx, req.QuizID)
		if err != nil {
			return nil, err
		}
		if quiz.Subject != req.Subject {
			return nil, errors.New(errors.CodeNotFound,
				errors.WithMessagef("quiz not found: subject=%s id=%s", req.Subject, req.QuizID))
		}

		return []domain.PublicQuiz{quiz.Public()}, nil
	}

	const stmt = `
SELECT quiz_id, subject, title, description, COALESCE(created_by::text, ''), questions, create_time, update_time
FROM quizzes
WHERE subject = $1
ORDER BY create_time;`

	rows, err := s.db.Query(ctx, stmt, req.Subject)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}

	quizzes, err := pgx.CollectRows(rows, scanQuiz)
	if err != nil {
		return nil, fmt.Errorf("collect quizzes: %w", err)
	}

	public := make([]domain.PublicQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		public = append(public, q.Public())
	}

	return public, nil
}

// GetQuiz loads the full quiz including correct indexes. For grading and
// admin use only, never served to students directly.
func (s *Service) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	if _, err := uuid.Parse(quizID); err != nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%s", quizID))
	}

	const stmt = `
SELECT quiz_id, subject, title, description, COALESCE(created_by::text, ''), questions, create_time, update_time
FROM quizzes
WHERE quiz_id = $1;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("query quiz: %w", err)
	}

	quiz, err := pgx.CollectOneRow(rows, scanQuiz)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%s", quizID))
	}
	if err != nil {
		return nil, fmt.Errorf("scan quiz: %w", err)
	}

	return &quiz, nil
}

// mutateQuestions loads the quiz's question sequence under a row lock,
// applies fn, and rewrites the row. Concurrent mutations of one quiz
// serialize on the lock.
func (s *Service) mutateQuestions(ctx context.Context, quizID string, fn func([]domain.Question) ([]domain.Question, error)) (err error) {
	if _, err := uuid.Parse(quizID); err != nil {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%s", quizID))
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const selStmt = `SELECT questions FROM quizzes WHERE quiz_id = $1 FOR UPDATE;`

	var qj []byte
	err = tx.QueryRow(ctx, selStmt, quizID).Scan(&qj)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%s", quizID))
	}
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	var questions []domain.Question
	if err = json.Unmarshal(qj, &questions); err != nil {
		return fmt.Errorf("unmarshal questions: %w", err)
	}

	questions, err = fn(questions)
	if err != nil {
		return err
	}

	if qj, err = json.Marshal(questions); err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	const updStmt = `UPDATE quizzes SET questions = $1, update_time = $2 WHERE quiz_id = $3;`

	if _, err = tx.Exec(ctx, updStmt, qj, time.Now(), quizID); err != nil {
		return fmt.Errorf("rewrite questions: %w", err)
	}

	return tx.Commit(ctx)
}

func scanQuiz(r pgx.CollectableRow) (domain.Quiz, error) {
	var (
		q  domain.Quiz
		qj []byte
	)
	if err := r.Scan(&q.QuizID, &q.Subject, &q.Title, &q.Description, &q.CreatedBy, &qj, &q.CreateTime, &q.UpdateTime); err != nil {
		return domain.Quiz{}, err
	}
	if err := json.Unmarshal(qj, &q.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}

	return q, nil
}

func indexOf(questions []domain.Question, questionID string) int {
	for i, q := range questions {
		if q.QuestionID == questionID {
			return i
		}
	}

	return -1
}

func requireAdmin(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("quiz mutation requires admin role"))
	}

	return nil
}
