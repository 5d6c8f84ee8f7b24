package student

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Register creates a student account. Email uniqueness is enforced by the
// store; a conflict surfaces as AlreadyExists.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.Student, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("name must not be empty"))
	}
	if !strings.Contains(req.Email, "@") {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid email"))
	}
	if len(req.Password) < 8 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("password must be at least 8 characters"))
	}

	role := req.Role
	if role == "" {
		role = domain.RoleStudent
	}
	if role != domain.RoleStudent && role != domain.RoleAdmin {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown role: %s", role))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate student ID: %w", err)
	}

	st := &domain.Student{
		StudentID:  id.String(),
		Name:       req.Name,
		Email:      strings.ToLower(req.Email),
		Role:       role,
		CreateTime: time.Now(),
	}

	const stmt = `
INSERT INTO students (student_id, name, email, password_hash, role, create_time)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err = s.db.Exec(ctx, stmt, st.StudentID, st.Name, st.Email, string(hash), st.Role, st.CreateTime)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("email already registered: %s", st.Email),
			errors.WithCause(err))
	}

	if err != nil {
		return nil, fmt.Errorf("insert student: %w", err)
	}

	return st, nil
}

type AuthenticateRequest struct {
	Email    string
	Password string
}

// Authenticate checks credentials. Wrong email and wrong password are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, req AuthenticateRequest) (*domain.Student, error) {
	const stmt = `
SELECT student_id, name, email, password_hash, role, create_time
FROM students
WHERE email = $1;`

	var (
		st   domain.Student
		hash string
	)
	err := s.db.QueryRow(ctx, stmt, strings.ToLower(req.Email)).
		Scan(&st.StudentID, &st.Name, &st.Email, &hash, &st.Role, &st.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid credentials"))
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid credentials"))
	}

	return &st, nil
}

// GetStudent resolves a student by id.
func (s *Service) GetStudent(ctx context.Context, studentID string) (*domain.Student, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("student not found: id=%s", studentID))
	}

	const stmt = `
SELECT student_id, name, email, role, create_time
FROM students
WHERE student_id = $1;`

	var st domain.Student
	err := s.db.QueryRow(ctx, stmt, studentID).
		Scan(&st.StudentID, &st.Name, &st.Email, &st.Role, &st.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("student not found: id=%s", studentID))
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}

	return &st, nil
}
