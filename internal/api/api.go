package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/victornm/quizcore/internal/auth"
	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
	"github.com/victornm/quizcore/internal/event"
	"github.com/victornm/quizcore/internal/grading"
	"github.com/victornm/quizcore/internal/leaderboard"
	"github.com/victornm/quizcore/internal/quiz"
	"github.com/victornm/quizcore/internal/student"
	"github.com/victornm/quizcore/internal/submission"
)

type Config struct {
	Router       *gin.Engine
	EventBus     *event.Bus
	Auth         *auth.Issuer
	Quiz         *quiz.Service
	Student      *student.Service
	Submission   *submission.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	auth *auth.Issuer
	qs   *quiz.Service
	sts  *student.Service
	subs *submission.Service
	ls   *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		auth:   c.Auth,
		qs:     c.Quiz,
		sts:    c.Student,
		subs:   c.Submission,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	a.registerRoutes(c.Router)

	c.EventBus.Subscribe(domain.EventNameSubmissionGraded, func(ctx context.Context, e event.Event) error {
		return a.notifySubmissionGraded(ctx, e.(domain.EventSubmissionGraded))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.notifyLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) registerRoutes(r *gin.Engine) {
	r.POST("/students", a.RegisterStudent)
	r.POST("/auth/login", a.Login)

	q := r.Group("/quizzes")
	q.GET("/subjects", a.ListSubjects)
	q.GET("/subject/:subject", a.GetQuizzesForSubject)
	q.GET("/:quizId/leaderboard", a.GetLeaderboard)

	authed := q.Group("", a.requireActor)
	authed.POST("", a.CreateQuiz)
	authed.POST("/:quizId/questions", a.AddQuestion)
	authed.PUT("/:quizId/questions/:questionId", a.UpdateQuestion)
	authed.DELETE("/:quizId/questions/:questionId", a.DeleteQuestion)
	authed.POST("/submit", a.Submit)
	authed.GET("/submissions", a.ListSubmissions)
	authed.GET("/submissions/:submissionId", a.GetSubmissionDetail)
}

// requireActor turns the bearer token into an Actor and stores it in the
// request context. Everything behind it can rely on a verified identity.
func (a *API) requireActor(c *gin.Context) {
	const prefix = "Bearer "

	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, prefix) {
		a.abortWithError(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token")))
		return
	}

	actor, err := a.auth.Verify(strings.TrimPrefix(h, prefix))
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.Set(ctxKeyActor, actor)
	c.Next()
}

const ctxKeyActor = "actor"

func actorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(ctxKeyActor); ok {
		return v.(domain.Actor)
	}

	return domain.Actor{}
}

func (a *API) abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", e,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e.PublicMessage()})
}

// --- Students ---

type registerStudentRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (a *API) RegisterStudent(c *gin.Context) {
	var req registerStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	st, err := a.sts.Register(c.Request.Context(), student.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"student": toStudent(*st)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	st, err := a.sts.Authenticate(c.Request.Context(), student.AuthenticateRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	token, err := a.auth.Issue(*st)
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"student": toStudent(*st),
	})
}

// --- Quizzes ---

type questionRequest struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Marks        float64  `json:"marks"`
	Explanation  string   `json:"explanation"`
}

func (q questionRequest) toNewQuestion() quiz.NewQuestion {
	return quiz.NewQuestion{
		Text:         q.Text,
		Options:      q.Options,
		CorrectIndex: q.CorrectIndex,
		Marks:        decimal.NewFromFloat(q.Marks),
		Explanation:  q.Explanation,
	}
}

type createQuizRequest struct {
	Subject     string            `json:"subject"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Questions   []questionRequest `json:"questions"`
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	questions := make([]quiz.NewQuestion, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, q.toNewQuestion())
	}

	created, err := a.qs.CreateQuiz(c.Request.Context(), quiz.CreateQuizRequest{
		Actor:       actorFrom(c),
		Subject:     req.Subject,
		Title:       req.Title,
		Description: req.Description,
		Questions:   questions,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"quiz": toQuiz(*created)})
}

func (a *API) AddQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	q, err := a.qs.AddQuestion(c.Request.Context(), quiz.AddQuestionRequest{
		Actor:    actorFrom(c),
		QuizID:   c.Param("quizId"),
		Question: req.toNewQuestion(),
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"question": toQuestion(*q)})
}

type updateQuestionRequest struct {
	Text         *string  `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correctIndex"`
	Marks        *float64 `json:"marks"`
	Explanation  *string  `json:"explanation"`
}

func (a *API) UpdateQuestion(c *gin.Context) {
	var req updateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	var marks *decimal.Decimal
	if req.Marks != nil {
		m := decimal.NewFromFloat(*req.Marks)
		marks = &m
	}

	q, err := a.qs.UpdateQuestion(c.Request.Context(), quiz.UpdateQuestionRequest{
		Actor:        actorFrom(c),
		QuizID:       c.Param("quizId"),
		QuestionID:   c.Param("questionId"),
		Text:         req.Text,
		Options:      req.Options,
		CorrectIndex: req.CorrectIndex,
		Marks:        marks,
		Explanation:  req.Explanation,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"question": toQuestion(*q)})
}

func (a *API) DeleteQuestion(c *gin.Context) {
	err := a.qs.DeleteQuestion(c.Request.Context(), quiz.DeleteQuestionRequest{
		Actor:      actorFrom(c),
		QuizID:     c.Param("quizId"),
		QuestionID: c.Param("questionId"),
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (a *API) ListSubjects(c *gin.Context) {
	subjects, err := a.qs.ListSubjects(c.Request.Context())
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

func (a *API) GetQuizzesForSubject(c *gin.Context) {
	quizzes, err := a.qs.GetQuizzesForSubject(c.Request.Context(), quiz.GetQuizzesForSubjectRequest{
		Subject: c.Param("subject"),
		QuizID:  c.Query("quizId"),
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	out := make([]publicQuizResponse, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, toPublicQuiz(q))
	}

	c.JSON(http.StatusOK, gin.H{"quizzes": out})
}

// --- Submissions ---

type submitAnswer struct {
	QuestionID    string `json:"questionId"`
	SelectedIndex *int   `json:"selectedIndex"`
}

type submitRequest struct {
	StudentID       string         `json:"studentId"`
	QuizID          string         `json:"quizId"`
	Answers         []submitAnswer `json:"answers"`
	DurationSeconds *int           `json:"durationSeconds"`
}

func (a *API) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	actor := actorFrom(c)
	studentID := req.StudentID
	if studentID == "" {
		studentID = actor.StudentID
	}
	// A student may only submit as themselves.
	if !actor.IsAdmin() && studentID != actor.StudentID {
		a.abortWithError(c, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("cannot submit for another student")))
		return
	}

	answers := make([]grading.AnswerInput, 0, len(req.Answers))
	for _, an := range req.Answers {
		answers = append(answers, grading.AnswerInput{
			QuestionID:    an.QuestionID,
			SelectedIndex: an.SelectedIndex,
		})
	}

	resp, err := a.subs.Submit(c.Request.Context(), submission.SubmitRequest{
		StudentID:       studentID,
		QuizID:          req.QuizID,
		Answers:         answers,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"result": toSummary(resp.Summary)})
}

func (a *API) ListSubmissions(c *gin.Context) {
	if !actorFrom(c).IsAdmin() {
		a.abortWithError(c, errors.New(errors.CodePermissionDenied, errors.WithMessagef("submission review requires admin role")))
		return
	}

	records, err := a.subs.ListSubmissions(c.Request.Context(), submission.ListSubmissionsRequest{
		QuizID:    c.Query("quizId"),
		StudentID: c.Query("studentId"),
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	out := make([]submissionResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toSubmission(r))
	}

	c.JSON(http.StatusOK, gin.H{"submissions": out})
}

func (a *API) GetSubmissionDetail(c *gin.Context) {
	if !actorFrom(c).IsAdmin() {
		a.abortWithError(c, errors.New(errors.CodePermissionDenied, errors.WithMessagef("submission review requires admin role")))
		return
	}

	detail, err := a.subs.GetSubmissionDetail(c.Request.Context(), c.Param("submissionId"))
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submission": toSubmissionDetail(*detail)})
}

// --- Leaderboard ---

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		QuizID: c.Param("quizId"),
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": toLeaderboard(*l)})
}

// --- Response shapes ---

type studentResponse struct {
	StudentID  string    `json:"studentId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	CreateTime time.Time `json:"createTime"`
}

func toStudent(st domain.Student) studentResponse {
	return studentResponse{
		StudentID:  st.StudentID,
		Name:       st.Name,
		Email:      st.Email,
		Role:       st.Role,
		CreateTime: st.CreateTime,
	}
}

type questionResponse struct {
	QuestionID   string   `json:"questionId"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Marks        float64  `json:"marks"`
	Explanation  string   `json:"explanation,omitempty"`
}

func toQuestion(q domain.Question) questionResponse {
	return questionResponse{
		QuestionID:   q.QuestionID,
		Text:         q.Text,
		Options:      q.Options,
		CorrectIndex: q.CorrectIndex,
		Marks:        q.Marks.InexactFloat64(),
		Explanation:  q.Explanation,
	}
}

type quizResponse struct {
	QuizID      string             `json:"quizId"`
	Subject     string             `json:"subject"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	CreatedBy   string             `json:"createdBy,omitempty"`
	Questions   []questionResponse `json:"questions"`
	CreateTime  time.Time          `json:"createTime"`
	UpdateTime  time.Time          `json:"updateTime"`
}

func toQuiz(q domain.Quiz) quizResponse {
	out := quizResponse{
		QuizID:      q.QuizID,
		Subject:     q.Subject,
		Title:       q.Title,
		Description: q.Description,
		CreatedBy:   q.CreatedBy,
		Questions:   make([]questionResponse, 0, len(q.Questions)),
		CreateTime:  q.CreateTime,
		UpdateTime:  q.UpdateTime,
	}
	for _, qq := range q.Questions {
		out.Questions = append(out.Questions, toQuestion(qq))
	}

	return out
}

type publicQuestionResponse struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Marks      float64  `json:"marks"`
}

type publicQuizResponse struct {
	QuizID      string                   `json:"quizId"`
	Subject     string                   `json:"subject"`
	Title       string                   `json:"title"`
	Description string                   `json:"description,omitempty"`
	Questions   []publicQuestionResponse `json:"questions"`
}

func toPublicQuiz(q domain.PublicQuiz) publicQuizResponse {
	out := publicQuizResponse{
		QuizID:      q.QuizID,
		Subject:     q.Subject,
		Title:       q.Title,
		Description: q.Description,
		Questions:   make([]publicQuestionResponse, 0, len(q.Questions)),
	}
	for _, qq := range q.Questions {
		out.Questions = append(out.Questions, publicQuestionResponse{
			QuestionID: qq.QuestionID,
			Text:       qq.Text,
			Options:    qq.Options,
			Marks:      qq.Marks.InexactFloat64(),
		})
	}

	return out
}

type summaryResponse struct {
	SubmissionID  string  `json:"submissionId"`
	QuizID        string  `json:"quizId"`
	StudentID     string  `json:"studentId"`
	TotalMarks    float64 `json:"totalMarks"`
	ObtainedMarks float64 `json:"obtainedMarks"`
	Percentage    float64 `json:"percentage"`
}

func toSummary(s domain.Summary) summaryResponse {
	return summaryResponse{
		SubmissionID:  s.SubmissionID,
		QuizID:        s.QuizID,
		StudentID:     s.StudentID,
		TotalMarks:    s.TotalMarks.InexactFloat64(),
		ObtainedMarks: s.ObtainedMarks.InexactFloat64(),
		Percentage:    s.Percentage.InexactFloat64(),
	}
}

type submissionResponse struct {
	SubmissionID    string    `json:"submissionId"`
	QuizID          string    `json:"quizId"`
	QuizSubject     string    `json:"quizSubject"`
	QuizTitle       string    `json:"quizTitle"`
	StudentID       string    `json:"studentId"`
	StudentName     string    `json:"studentName"`
	StudentEmail    string    `json:"studentEmail"`
	TotalMarks      float64   `json:"totalMarks"`
	ObtainedMarks   float64   `json:"obtainedMarks"`
	DurationSeconds *int      `json:"durationSeconds,omitempty"`
	CreateTime      time.Time `json:"createTime"`
}

func toSubmission(r submission.Record) submissionResponse {
	return submissionResponse{
		SubmissionID:    r.SubmissionID,
		QuizID:          r.QuizID,
		QuizSubject:     r.QuizSubject,
		QuizTitle:       r.QuizTitle,
		StudentID:       r.StudentID,
		StudentName:     r.StudentName,
		StudentEmail:    r.StudentEmail,
		TotalMarks:      r.TotalMarks.InexactFloat64(),
		ObtainedMarks:   r.ObtainedMarks.InexactFloat64(),
		DurationSeconds: r.DurationSeconds,
		CreateTime:      r.CreateTime,
	}
}

type answerDetailResponse struct {
	QuestionID    string   `json:"questionId"`
	Text          string   `json:"text,omitempty"`
	Options       []string `json:"options,omitempty"`
	SelectedIndex *int     `json:"selectedIndex"`
	Correct       bool     `json:"correct"`
	MarksObtained string   `json:"marksObtained"`
}

type submissionDetailResponse struct {
	submissionResponse

	Answers []answerDetailResponse `json:"answers"`
}

func toSubmissionDetail(d submission.Detail) submissionDetailResponse {
	out := submissionDetailResponse{
		submissionResponse: toSubmission(d.Record),
		Answers:            make([]answerDetailResponse, 0, len(d.Answers)),
	}
	for _, an := range d.Answers {
		out.Answers = append(out.Answers, answerDetailResponse{
			QuestionID:    an.QuestionID,
			Text:          an.Text,
			Options:       an.Options,
			SelectedIndex: an.SelectedIndex,
			Correct:       an.Correct,
			MarksObtained: an.MarksObtained,
		})
	}

	return out
}

type leaderboardResponse struct {
	QuizID  string                     `json:"quizId"`
	Entries []leaderboardEntryResponse `json:"entries"`
}

type leaderboardEntryResponse struct {
	StudentID string  `json:"studentId"`
	Marks     float64 `json:"marks"`
}

func toLeaderboard(l domain.Leaderboard) leaderboardResponse {
	out := leaderboardResponse{
		QuizID:  l.QuizID,
		Entries: make([]leaderboardEntryResponse, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		out.Entries = append(out.Entries, leaderboardEntryResponse{
			StudentID: e.StudentID,
			Marks:     e.Marks,
		})
	}

	return out
}
