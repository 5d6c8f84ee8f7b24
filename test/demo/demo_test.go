//go:build integration_test

// Demo flow against a running server and its infra. Start the server with
// CONFIG_PATH pointing at a local config, then:
//
//	go test -tags integration_test ./test/demo
package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	baseURL      = "http://localhost:8080"
	redisAddr    = "localhost:6379"
	pubsubPrefix = "quizcore"
)

func TestQuizFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run := uuid.New().String()[:8]

	// Register an admin and two students.
	adminToken, _ := register(t, ctx, "Ada "+run, fmt.Sprintf("ada-%s@example.com", run), "admin")
	st1Token, st1 := register(t, ctx, "Sam "+run, fmt.Sprintf("sam-%s@example.com", run), "student")
	st2Token, st2 := register(t, ctx, "Kim "+run, fmt.Sprintf("kim-%s@example.com", run), "student")

	// Watch for the graded notification of student 1.
	wg := new(sync.WaitGroup)
	subscribeAsStudent(t, ctx, wg, st1)

	// Admin creates a quiz.
	subject := "Math-" + run
	var quizID, questionID string
	{
		var resp struct {
			Quiz struct {
				QuizID    string `json:"quizId"`
				Questions []struct {
					QuestionID string `json:"questionId"`
				} `json:"questions"`
			} `json:"quiz"`
		}
		code := call(t, ctx, http.MethodPost, "/quizzes", adminToken, map[string]any{
			"subject": subject,
			"title":   "Basics",
			"questions": []map[string]any{
				{"text": "2+2?", "options": []string{"3", "4", "5", "6"}, "correctIndex": 1, "marks": 2},
			},
		}, &resp)
		require.Equal(t, http.StatusCreated, code)
		quizID = resp.Quiz.QuizID
		questionID = resp.Quiz.Questions[0].QuestionID
	}

	// Students read the quiz; the payload must not contain the answer.
	{
		var resp map[string]any
		code := call(t, ctx, http.MethodGet, "/quizzes/subject/"+subject, st1Token, nil, &resp)
		require.Equal(t, http.StatusOK, code)
		b, _ := json.Marshal(resp)
		require.NotContains(t, string(b), "correctIndex")
	}

	// Both students submit concurrently; student 1 also races a duplicate.
	var (
		mu        sync.Mutex
		conflicts int
		successes int
	)
	var eg errgroup.Group
	submit := func(token, studentID string, selected int) func() error {
		return func() error {
			var resp map[string]any
			code := call(t, ctx, http.MethodPost, "/quizzes/submit", token, map[string]any{
				"studentId": studentID,
				"quizId":    quizID,
				"answers":   []map[string]any{{"questionId": questionID, "selectedIndex": selected}},
			}, &resp)

			mu.Lock()
			defer mu.Unlock()
			switch code {
			case http.StatusCreated:
				successes++
			case http.StatusConflict:
				conflicts++
			default:
				return fmt.Errorf("unexpected status %d: %v", code, resp)
			}
			return nil
		}
	}
	eg.Go(submit(st1Token, st1, 1))
	eg.Go(submit(st1Token, st1, 1))
	eg.Go(submit(st2Token, st2, 0))
	require.NoError(t, eg.Wait())
	require.Equal(t, 2, successes, "one submission per student")
	require.Equal(t, 1, conflicts, "the duplicate must be rejected")

	// The leaderboard ranks student 1 (correct) above student 2 (wrong).
	require.Eventually(t, func() bool {
		var resp struct {
			Leaderboard struct {
				Entries []struct {
					StudentID string  `json:"studentId"`
					Marks     float64 `json:"marks"`
				} `json:"entries"`
			} `json:"leaderboard"`
		}
		code := call(t, ctx, http.MethodGet, "/quizzes/"+quizID+"/leaderboard", st1Token, nil, &resp)
		return code == http.StatusOK &&
			len(resp.Leaderboard.Entries) == 2 &&
			resp.Leaderboard.Entries[0].StudentID == st1
	}, 5*time.Second, 100*time.Millisecond)

	// Admin reviews the submissions.
	{
		var resp struct {
			Submissions []struct {
				StudentID     string  `json:"studentId"`
				ObtainedMarks float64 `json:"obtainedMarks"`
			} `json:"submissions"`
		}
		code := call(t, ctx, http.MethodGet, "/quizzes/submissions?quizId="+quizID, adminToken, nil, &resp)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, resp.Submissions, 2)
	}

	wg.Wait()
}

func register(t *testing.T, ctx context.Context, name, email, role string) (token, studentID string) {
	t.Helper()

	var reg map[string]any
	code := call(t, ctx, http.MethodPost, "/students", "", map[string]any{
		"name": name, "email": email, "password": "secret-password", "role": role,
	}, &reg)
	require.Equal(t, http.StatusCreated, code)

	var resp struct {
		Token   string `json:"token"`
		Student struct {
			StudentID string `json:"studentId"`
		} `json:"student"`
	}
	code = call(t, ctx, http.MethodPost, "/auth/login", "", map[string]any{
		"email": email, "password": "secret-password",
	}, &resp)
	require.Equal(t, http.StatusOK, code)

	return resp.Token, resp.Student.StudentID
}

func call(t *testing.T, ctx context.Context, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}

	return resp.StatusCode
}

func subscribeAsStudent(t *testing.T, ctx context.Context, wg *sync.WaitGroup, studentID string) {
	t.Helper()

	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	sub := rc.Subscribe(ctx, fmt.Sprintf("%s:student:%s", pubsubPrefix, studentID))

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				t.Error("no notification received for student", studentID)
				return
			case msg := <-sub.Channel():
				t.Logf("notification for %s: %s", studentID, msg.Payload)
				return
			}
		}
	}()
}
