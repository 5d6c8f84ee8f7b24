// Package submission owns the grading records: one per (student, quiz)
// pair, created exactly once and never updated.
package submission

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
	"github.com/victornm/quizcore/internal/event"
	"github.com/victornm/quizcore/internal/grading"
)

// QuizGetter resolves a quiz with its full question set, answer keys
// included, for grading.
type QuizGetter interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
}

// StudentGetter resolves a student by id.
type StudentGetter interface {
	GetStudent(ctx context.Context, studentID string) (*domain.Student, error)
}

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
	Quizzes  QuizGetter
	Students StudentGetter
}

type Service struct {
	db       *pgxpool.Pool
	eb       *event.Bus
	quizzes  QuizGetter
	students StudentGetter
}

func NewService(c Config) *Service {
	return &Service{
		db:       c.DB,
		eb:       c.EventBus,
		quizzes:  c.Quizzes,
		students: c.Students,
	}
}

type SubmitRequest struct {
	StudentID       string
	QuizID          string
	Answers         []grading.AnswerInput
	DurationSeconds *int
}

type SubmitResponse struct {
	Submission domain.Submission
	Summary    domain.Summary
}

// Submit grades the answer set against the quiz's current questions and
// persists the submission. There is no pre-check for an existing
// submission: the unique index on (student_id, quiz_id) is the only
// duplicate guard, so two concurrent submits resolve to exactly one
// success even across processes.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	student, err := s.students.GetStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	g := grading.Grade(*quiz, req.Answers)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate submission ID: %w", err)
	}

	sub := domain.Submission{
		SubmissionID:    id.String(),
		StudentID:       student.StudentID,
		QuizID:          quiz.QuizID,
		Answers:         g.Answers,
		TotalMarks:      g.TotalMarks,
		ObtainedMarks:   g.ObtainedMarks,
		DurationSeconds: req.DurationSeconds,
		CreateTime:      time.Now(),
	}

	if err := s.insertSubmission(ctx, &sub); err != nil {
		return nil, err
	}

	summary := domain.Summary{
		SubmissionID:  sub.SubmissionID,
		QuizID:        sub.QuizID,
		StudentID:     sub.StudentID,
		TotalMarks:    g.TotalMarks,
		ObtainedMarks: g.ObtainedMarks,
		Percentage:    g.Percentage,
	}

	s.eb.Publish(ctx, domain.EventSubmissionGraded{
		Summary: summary,
	})

	return &SubmitResponse{
		Submission: sub,
		Summary:    summary,
	}, nil
}

func (s *Service) insertSubmission(ctx context.Context, sub *domain.Submission) error {
	aj, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	const stmt = `
INSERT INTO submissions (submission_id, student_id, quiz_id, answers, total_marks, obtained_marks, duration_seconds, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err = s.db.Exec(ctx, stmt,
		sub.SubmissionID, sub.StudentID, sub.QuizID, aj, sub.TotalMarks, sub.ObtainedMarks, sub.DurationSeconds, sub.CreateTime)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("quiz already submitted: student=%s quiz=%s", sub.StudentID, sub.QuizID),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	return nil
}

// Record is a submission joined with the student and quiz it references.
type Record struct {
	domain.Submission

	StudentName  string
	StudentEmail string
	QuizSubject  string
	QuizTitle    string
}

type ListSubmissionsRequest struct {
	// Both filters are optional and combine conjunctively.
	QuizID    string
	StudentID string
}

// ListSubmissions returns matching submissions, newest first.
func (s *Service) ListSubmissions(ctx context.Context, req ListSubmissionsRequest) ([]Record, error) {
	const stmt = `
SELECT sub.submission_id, sub.student_id, sub.quiz_id, sub.answers,
       sub.total_marks, sub.obtained_marks, sub.duration_seconds, sub.create_time,
       st.name, st.email, q.subject, q.title
FROM submissions sub
JOIN students st ON st.student_id = sub.student_id
JOIN quizzes q ON q.quiz_id = sub.quiz_id
WHERE ($1 = '' OR sub.quiz_id::text = $1)
  AND ($2 = '' OR sub.student_id::text = $2)
ORDER BY sub.create_time DESC;`

	rows, err := s.db.Query(ctx, stmt, req.QuizID, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("collect submissions: %w", err)
	}

	return records, nil
}

// Detail is a submission with every answer joined back to its question's
// public shape. Correct indexes stay withheld even here.
type Detail struct {
	Record

	Answers []AnswerDetail
}

// AnswerDetail pairs a graded answer with its question's text and options.
// Text and Options are empty when the question no longer exists on the
// quiz; the recorded marks stay authoritative.
type AnswerDetail struct {
	QuestionID    string
	Text          string
	Options       []string
	SelectedIndex *int
	Correct       bool
	MarksObtained string
}

// GetSubmissionDetail loads one submission with questions joined in.
func (s *Service) GetSubmissionDetail(ctx context.Context, submissionID string) (*Detail, error) {
	if _, err := uuid.Parse(submissionID); err != nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("submission not found: id=%s", submissionID))
	}

	const stmt = `
SELECT sub.submission_id, sub.student_id, sub.quiz_id, sub.answers,
       sub.total_marks, sub.obtained_marks, sub.duration_seconds, sub.create_time,
       st.name, st.email, q.subject, q.title
FROM submissions sub
JOIN students st ON st.student_id = sub.student_id
JOIN quizzes q ON q.quiz_id = sub.quiz_id
WHERE sub.submission_id = $1;`

	rows, err := s.db.Query(ctx, stmt, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query submission: %w", err)
	}

	rec, err := pgx.CollectOneRow(rows, scanRecord)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("submission not found: id=%s", submissionID))
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}

	quiz, err := s.quizzes.GetQuiz(ctx, rec.QuizID)
	if err != nil {
		return nil, err
	}

	return &Detail{
		Record:  rec,
		Answers: enrichAnswers(quiz.Questions, rec.Submission.Answers),
	}, nil
}

// enrichAnswers joins graded answers back to the quiz's current questions,
// using the public projection so no answer key leaks into review payloads.
func enrichAnswers(questions []domain.Question, answers []domain.Answer) []AnswerDetail {
	byID := make(map[string]domain.PublicQuestion, len(questions))
	for _, q := range questions {
		byID[q.QuestionID] = q.Public()
	}

	details := make([]AnswerDetail, 0, len(answers))
	for _, a := range answers {
		d := AnswerDetail{
			QuestionID:    a.QuestionID,
			SelectedIndex: a.SelectedIndex,
			Correct:       a.Correct,
			MarksObtained: a.MarksObtained.String(),
		}
		if q, ok := byID[a.QuestionID]; ok {
			d.Text = q.Text
			d.Options = q.Options
		}
		details = append(details, d)
	}

	return details
}

func scanRecord(r pgx.CollectableRow) (Record, error) {
	var (
		rec Record
		aj  []byte
	)
	err := r.Scan(
		&rec.SubmissionID, &rec.StudentID, &rec.QuizID, &aj,
		&rec.TotalMarks, &rec.ObtainedMarks, &rec.DurationSeconds, &rec.CreateTime,
		&rec.StudentName, &rec.StudentEmail, &rec.QuizSubject, &rec.QuizTitle,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(aj, &rec.Submission.Answers); err != nil {
		return Record{}, fmt.Errorf("unmarshal answers: %w", err)
	}

	return rec, nil
}
