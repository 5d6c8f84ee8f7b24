// Package storage bootstraps the postgres schema. The DDL is idempotent
// and applied on every startup, mirroring how the schema would be managed
// in a single-service deployment.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS students (
  student_id    UUID PRIMARY KEY,
  name          TEXT NOT NULL,
  email         TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role          TEXT NOT NULL DEFAULT 'student',
  create_time   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quizzes (
  quiz_id     UUID PRIMARY KEY,
  subject     TEXT NOT NULL,
  title       TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_by  UUID,
  questions   JSONB NOT NULL DEFAULT '[]',
  create_time TIMESTAMPTZ NOT NULL,
  update_time TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS quizzes_subject_idx ON quizzes (subject);

CREATE TABLE IF NOT EXISTS submissions (
  submission_id    UUID PRIMARY KEY,
  student_id       UUID NOT NULL REFERENCES students (student_id),
  quiz_id          UUID NOT NULL REFERENCES quizzes (quiz_id),
  answers          JSONB NOT NULL DEFAULT '[]',
  total_marks      NUMERIC NOT NULL,
  obtained_marks   NUMERIC NOT NULL,
  duration_seconds INTEGER,
  create_time      TIMESTAMPTZ NOT NULL,
  -- At most one submission per (student, quiz). This constraint is the
  -- only duplicate guard: submit never pre-checks.
  CONSTRAINT submissions_student_quiz_key UNIQUE (student_id, quiz_id)
);

CREATE INDEX IF NOT EXISTS submissions_quiz_idx ON submissions (quiz_id);
CREATE INDEX IF NOT EXISTS submissions_student_idx ON submissions (student_id);
`

// Migrate applies the schema. Safe to call on every startup.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

func firstLine(stmt string) string {
	for _, line := range strings.Split(stmt, "\n") {
		if s := strings.TrimSpace(line); s != "" && !strings.HasPrefix(s, "--") {
			return s
		}
	}

	return stmt
}
