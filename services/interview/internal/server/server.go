package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mockinterview/internal/ratelimit"
	"mockinterview/internal/util"
	"mockinterview/pkg/domain"
	"mockinterview/pkg/interview"
	"mockinterview/services/interview/internal/app"
	"mockinterview/services/interview/internal/security"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	AllowedOrigins           []string
	TrustedProxyCIDRs        []string
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	AnswerRateLimitPerMinute int
	MaxResumeBytes           int64
	MaxAudioBytes            int64
	ResumeExtensions         []string
}

// Server exposes the interview HTTP API.
type Server struct {
	app               *app.App
	mux               *http.ServeMux
	allowedOrigins    []string
	trustedProxies    *util.TrustedProxies
	maxResumeBytes    int64
	maxAudioBytes     int64
	resumeExtensions  map[string]struct{}
	signupLimiter     ratelimit.Limiter
	loginLimiter      ratelimit.Limiter
	answerLimiter     ratelimit.Limiter
	alerter           *security.Alerter
	limiterCloseFuncs []func() error
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:              cfg.App,
		mux:              http.NewServeMux(),
		allowedOrigins:   cfg.AllowedOrigins,
		trustedProxies:   trusted,
		maxResumeBytes:   normalizeMaxBytes(cfg.MaxResumeBytes, 10<<20),
		maxAudioBytes:    normalizeMaxBytes(cfg.MaxAudioBytes, 25<<20),
		resumeExtensions: normalizeExtensions(cfg.ResumeExtensions),
		alerter:          security.NewAlerter(cfg.RedisAddr, cfg.RedisPassword, "interview:alerts"),
	}

	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	answerLimit := cfg.AnswerRateLimitPerMinute
	if answerLimit <= 0 {
		answerLimit = 30
	}
	newLimiter := func(name string, limit int) (ratelimit.Limiter, error) {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return ratelimit.NewMemoryFixedWindowLimiter(limit, time.Minute)
		}
		prefix := "interview:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		s.limiterCloseFuncs = append(s.limiterCloseFuncs, limiter.Close)
		return limiter, nil
	}
	if s.signupLimiter, err = newLimiter("signup", signupLimit); err != nil {
		return nil, err
	}
	if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.answerLimiter, err = newLimiter("answer", answerLimit); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("interview", util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

// Close releases the Redis-backed rate limiters and alerter.
func (s *Server) Close() error {
	errs := []error{s.alerter.Close()}
	for _, closeFn := range s.limiterCloseFuncs {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// accounts
	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.Handle("POST /api/auth/logout-all", s.authenticated(s.handleLogoutAll))
	s.mux.Handle("GET /api/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("GET /api/users/me/profile", s.authenticated(s.handleGetProfile))
	s.mux.Handle("PATCH /api/users/me/profile", s.authenticated(s.handleUpdateProfile))

	// interview sessions
	s.mux.Handle("POST /api/resumes", s.authenticated(s.handleUploadResume))
	s.mux.Handle("GET /api/sessions", s.authenticated(s.handleListSessions))
	s.mux.Handle("GET /api/sessions/{id}", s.authenticated(s.handleGetSession))
	s.mux.Handle("POST /api/sessions/{id}/start", s.authenticated(s.handleStartSession))
	s.mux.Handle("GET /api/sessions/{id}/next", s.authenticated(s.handleNextQuestion))
	s.mux.Handle("GET /api/sessions/{id}/questions", s.authenticated(s.handleListQuestions))
	s.mux.Handle("POST /api/sessions/{id}/close", s.authenticated(s.handleCloseSession))
	s.mux.Handle("GET /api/sessions/{id}/report", s.authenticated(s.handleReport))
	s.mux.Handle("POST /api/questions/{id}/answers", s.authenticated(s.handleSubmitAnswer))
	s.mux.Handle("GET /api/answers/{id}", s.authenticated(s.handleAnswerStatus))
	s.mux.Handle("POST /api/answers/{id}/retry", s.authenticated(s.handleRetryAnalysis))

	// notifications
	s.mux.Handle("GET /api/notifications", s.authenticated(s.handleListNotifications))
	s.mux.Handle("POST /api/notifications/{id}/read", s.authenticated(s.handleMarkRead))
}

type authHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	failures := s.app.Health(r.Context())
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "interview.authorize", "fail", "reason", "missing_token")
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		user, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			s.audit(r, "interview.authorize", "fail", "reason", err.Error())
			writeAuthError(w, r, err)
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, s.clientIP(r), "too many signup attempts") {
		s.audit(r, "interview.signup", "rate_limited")
		return
	}
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "interview.signup", "fail", "reason", "invalid_json")
		return
	}
	user, token, err := s.app.SignUp(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.audit(r, "interview.signup", "fail", "reason", err.Error())
		writeAuthError(w, r, err)
		return
	}
	s.audit(r, "interview.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, s.clientIP(r), "too many login attempts") {
		s.audit(r, "interview.login", "rate_limited")
		return
	}
	var req authRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "interview.login", "fail", "reason", "invalid_json")
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "interview.login", "fail", "reason", err.Error())
		writeAuthError(w, r, err)
		return
	}
	s.audit(r, "interview.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "interview.logout", "fail", "reason", "missing_token")
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if err := s.app.Logout(r.Context(), token); err != nil {
		s.audit(r, "interview.logout", "fail", "reason", err.Error())
		writeAuthError(w, r, err)
		return
	}
	s.audit(r, "interview.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.LogoutAll(r.Context(), user.ID); err != nil {
		s.audit(r, "interview.logout_all", "fail", "user_id", user.ID, "reason", err.Error())
		writeAuthError(w, r, err)
		return
	}
	s.audit(r, "interview.logout_all", "success", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	profile, err := s.app.Profile(r.Context(), user.ID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type profileRequest struct {
	PreferredRole *domain.JobRole    `json:"preferredRole"`
	Difficulty    *domain.Difficulty `json:"difficulty"`
	Category      *domain.Category   `json:"category"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := s.app.UpdateProfile(r.Context(), user.ID, app.ProfileUpdate{
		PreferredRole: req.PreferredRole,
		Difficulty:    req.Difficulty,
		Category:      req.Category,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type uploadResponse struct {
	Resume  domain.Resume  `json:"resume"`
	Session domain.Session `json:"session"`
}

func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxResumeBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "RESUME_TOO_LARGE", "file too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "RESUME_INVALID", "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "RESUME_INVALID", "file is required")
		return
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, r, http.StatusBadRequest, "RESUME_INVALID", "unsupported file type")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "RESUME_INVALID", "read file failed")
		return
	}
	role := domain.JobRole(strings.TrimSpace(r.FormValue("role")))
	resume, session, err := s.app.Lifecycle().UploadResume(r.Context(), user.ID, header.Filename, data, role)
	if err != nil {
		writeInterviewError(w, r, err, "RESUME_INVALID", "SESSION_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Resume: resume, Session: session})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, user domain.User) {
	sessions, err := s.app.Lifecycle().ListSessions(r.Context(), user.ID)
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, user domain.User) {
	session, err := s.app.Lifecycle().GetSession(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type startResponse struct {
	Session   domain.Session    `json:"session"`
	Questions []domain.Question `json:"questions"`
	Next      *domain.Question  `json:"next"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request, user domain.User) {
	lifecycle := s.app.Lifecycle()
	session, questions, err := lifecycle.GenerateQuestions(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	resp := startResponse{Session: session, Questions: questions}
	next, ok, err := lifecycle.NextQuestion(r.Context(), user.ID, session.ID)
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	if ok {
		resp.Next = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

type nextResponse struct {
	Done     bool             `json:"done"`
	Question *domain.Question `json:"question,omitempty"`
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request, user domain.User) {
	next, ok, err := s.app.Lifecycle().NextQuestion(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nextResponse{Done: true})
		return
	}
	writeJSON(w, http.StatusOK, nextResponse{Question: &next})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request, user domain.User) {
	questions, err := s.app.Lifecycle().SessionQuestions(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request, user domain.User) {
	session, err := s.app.Lifecycle().CloseSession(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, user domain.User) {
	report, err := s.app.Reporter().BuildReport(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "SESSION_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type answerRequest struct {
	Transcript string `json:"transcript"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.answerLimiter, user.ID, "too many answer submissions") {
		s.audit(r, "interview.answer", "rate_limited", "user_id", user.ID)
		return
	}
	sub := interview.AnswerSubmission{}
	if isJSONRequest(r) {
		var req answerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sub.Transcript = req.Transcript
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxAudioBytes+(1<<20))
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, r, http.StatusRequestEntityTooLarge, "AUDIO_TOO_LARGE", "audio too large")
				return
			}
			writeError(w, r, http.StatusBadRequest, "ANSWER_INVALID", "invalid multipart form")
			return
		}
		sub.Transcript = r.FormValue("transcript")
		file, header, err := r.FormFile("audio")
		switch {
		case err == nil:
			defer file.Close()
			if header.Size > s.maxAudioBytes {
				writeError(w, r, http.StatusRequestEntityTooLarge, "AUDIO_TOO_LARGE", "audio too large")
				return
			}
			sub.Audio = file
			sub.AudioSize = header.Size
			sub.AudioFilename = filepath.Base(header.Filename)
			sub.ContentType = header.Header.Get("Content-Type")
		case errors.Is(err, http.ErrMissingFile):
		default:
			writeError(w, r, http.StatusBadRequest, "ANSWER_INVALID", "invalid audio upload")
			return
		}
	}
	answer, err := s.app.Lifecycle().SubmitAnswer(r.Context(), user.ID, r.PathValue("id"), sub)
	if err != nil {
		writeInterviewError(w, r, err, "ANSWER_INVALID", "QUESTION_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusAccepted, answer)
}

func (s *Server) handleAnswerStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	status, err := s.app.Lifecycle().AnswerStatus(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "ANSWER_INVALID", "ANSWER_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRetryAnalysis(w http.ResponseWriter, r *http.Request, user domain.User) {
	job, err := s.app.Lifecycle().RetryAnalysis(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeInterviewError(w, r, err, "ANSWER_INVALID", "ANSWER_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, user domain.User) {
	list, err := s.app.Notifier().List(r.Context(), user.ID)
	if err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "NOTIFICATION_NOT_FOUND")
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.Notifier().MarkRead(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeInterviewError(w, r, err, "VALIDATION_FAILED", "NOTIFICATION_NOT_FOUND")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return false
	}
	return true
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromContext(r.Context()),
	})
}

func normalizeMaxBytes(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".pdf", ".docx", ".txt", ".md", ".html"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.resumeExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.resumeExtensions[ext]
	return ok
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	alert, err := s.alerter.Observe(r.Context(), event, outcome, s.clientIP(r))
	if err != nil {
		logger.Error("security alert counter failed", "event", event, "err", err)
		return
	}
	if alert.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", s.clientIP(r),
			"count", alert.Count,
			"threshold", alert.Threshold,
			"window", alert.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, subject, msg string) bool {
	allowed, retryAfter := limiter.Allow(r.Context(), subject)
	if allowed {
		return true
	}
	seconds := int(retryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", msg)
	return false
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, r, http.StatusConflict, "EMAIL_EXISTS", err.Error())
	case errors.Is(err, app.ErrEmailAndPasswordRequired), errors.Is(err, app.ErrInvalidEmail), errors.Is(err, app.ErrWeakPassword):
		writeError(w, r, http.StatusBadRequest, "SIGNUP_INVALID", err.Error())
	case errors.Is(err, app.ErrInvalidProfile):
		writeError(w, r, http.StatusBadRequest, "PROFILE_INVALID", err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// writeInterviewError maps pipeline errors; validationCode and notFoundCode
// name the resource the handler works on.
func writeInterviewError(w http.ResponseWriter, r *http.Request, err error, validationCode, notFoundCode string) {
	switch {
	case errors.Is(err, interview.ErrSessionClosed):
		writeError(w, r, http.StatusConflict, "SESSION_CLOSED", err.Error())
	case errors.Is(err, interview.ErrQuestionsNotReady):
		writeError(w, r, http.StatusConflict, "QUESTIONS_NOT_READY", err.Error())
	case errors.Is(err, interview.ErrValidation):
		writeError(w, r, http.StatusBadRequest, validationCode, err.Error())
	case errors.Is(err, interview.ErrNotFound):
		writeError(w, r, http.StatusNotFound, notFoundCode, "not found")
	case errors.Is(err, interview.ErrTimeout):
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "question generation timed out")
	case errors.Is(err, interview.ErrGeneration):
		writeError(w, r, http.StatusBadGateway, "GENERATION_FAILED", "question generation failed, retry later")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
