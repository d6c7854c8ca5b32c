package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/middleware"
)

const defaultMaxBodyBytes = 16 << 10

const (
	msgCodeSent       = "Code sent"
	msgInvalidCode    = "Invalid code"
	msgInvalidEmail   = "Invalid email"
	msgInvalidRequest = "Invalid request"
	msgAccountExists  = "An account with this email already exists."
	msgPasswordPolicy = "Password does not meet the length requirements."
	msgBadCredentials = "Invalid email or password"
	msgUnverified     = "Verify your email before creating an account."
	msgRateLimited    = "Too many requests. Please try again later."
	msgUnavailable    = "Something went wrong. Please try again."
)

// Service is the engine surface the handler calls; *goOTP.Engine implements it.
type Service interface {
	CheckUser(ctx context.Context, email string) (goOTP.CheckUserResult, error)
	IssueCode(ctx context.Context, email string) (goOTP.IssueResult, error)
	StartSignup(ctx context.Context, email string) (goOTP.IssueResult, error)
	VerifyCode(ctx context.Context, email, code string) (goOTP.VerifyResult, error)
	CompleteSignup(ctx context.Context, req goOTP.SignupRequest) (goOTP.SignupResult, error)
	LoginPassword(ctx context.Context, email, password string) (goOTP.SignupResult, error)
	ParseSessionToken(token string) (*jwt.SessionClaims, error)
}

// Config tunes the handler. The zero value is usable.
type Config struct {
	Logger *slog.Logger
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	// TrustForwardedFor takes the client IP from the first X-Forwarded-For
	// entry. Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool
	MaxBodyBytes      int64
}

// Handler routes the JSON API to a Service.
type Handler struct {
	svc    Service
	cfg    Config
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewHandler(svc Service, cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	h := &Handler{
		svc:    svc,
		cfg:    cfg,
		logger: cfg.Logger,
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/check-user", h.checkUser)
	h.mux.HandleFunc("POST /api/send-code", h.sendCode)
	h.mux.HandleFunc("POST /api/signup", h.signup)
	h.mux.HandleFunc("POST /api/verify-code", h.verifyCode)
	h.mux.HandleFunc("POST /api/complete-signup", h.completeSignup)
	h.mux.HandleFunc("POST /api/login-password", h.loginPassword)
	h.mux.Handle("GET /api/session", middleware.Guard(svc)(http.HandlerFunc(h.session)))
	if cfg.Metrics != nil {
		h.mux.Handle("GET /metrics", cfg.Metrics)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := goOTP.WithClientIP(r.Context(), h.clientIP(r))
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

type emailRequest struct {
	Email string `json:"email"`
}

type checkUserResponse struct {
	Exists   bool   `json:"exists"`
	NextStep string `json:"nextStep,omitempty"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type completeSignupRequest struct {
	Email             string `json:"email"`
	VerificationToken string `json:"verificationToken"`
	Password          string `json:"password,omitempty"`
	Nickname          string `json:"nickname,omitempty"`
	Country           string `json:"country,omitempty"`
	Birthdate         string `json:"birthdate,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Email string `json:"email"`
}

func (h *Handler) checkUser(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.CheckUser(r.Context(), req.Email)
	if err != nil {
		h.fail(w, r, "check-user", err)
		return
	}
	writeJSON(w, http.StatusOK, checkUserResponse{Exists: res.Exists, NextStep: string(res.NextStep)})
}

func (h *Handler) sendCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.svc.IssueCode(r.Context(), req.Email); err != nil {
		h.fail(w, r, "send-code", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: msgCodeSent})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.svc.StartSignup(r.Context(), req.Email); err != nil {
		h.fail(w, r, "signup", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: msgCodeSent})
}

func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.VerifyCode(r.Context(), req.Email, req.Code)
	if errors.Is(err, goOTP.ErrInvalidEmail) {
		// Indistinguishable from any other rejected code.
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: msgInvalidCode})
		return
	}
	if err != nil {
		h.fail(w, r, "verify-code", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Token: res.Token})
}

func (h *Handler) completeSignup(w http.ResponseWriter, r *http.Request) {
	var req completeSignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.CompleteSignup(r.Context(), goOTP.SignupRequest{
		Email:             req.Email,
		VerificationToken: req.VerificationToken,
		Password:          req.Password,
		Nickname:          req.Nickname,
		Country:           req.Country,
		Birthdate:         req.Birthdate,
	})
	if err != nil {
		h.fail(w, r, "complete-signup", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Token: res.Token})
}

func (h *Handler) loginPassword(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.LoginPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login-password", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Token: res.Token})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, statusResponse{Message: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Email: claims.Email})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: msgInvalidRequest})
		return false
	}
	return true
}

// fail maps engine errors to a status and a fixed message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, route string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "goOTP: request failed", "route", route, "error", err)
	}
	writeJSON(w, status, statusResponse{Message: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goOTP.ErrCodeNotFound),
		errors.Is(err, goOTP.ErrCodeMismatch),
		errors.Is(err, goOTP.ErrCodeExpired),
		errors.Is(err, goOTP.ErrCodeAttemptsExceeded):
		return http.StatusBadRequest, msgInvalidCode
	case errors.Is(err, goOTP.ErrInvalidEmail):
		return http.StatusBadRequest, msgInvalidEmail
	case errors.Is(err, goOTP.ErrPasswordPolicy):
		return http.StatusBadRequest, msgPasswordPolicy
	case errors.Is(err, goOTP.ErrAccountExists):
		return http.StatusConflict, msgAccountExists
	case errors.Is(err, goOTP.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgBadCredentials
	case errors.Is(err, goOTP.ErrVerificationRequired):
		return http.StatusUnauthorized, msgUnverified
	case errors.Is(err, goOTP.ErrRateLimited):
		return http.StatusTooManyRequests, msgRateLimited
	default:
		return http.StatusInternalServerError, msgUnavailable
	}
}

func (h *Handler) clientIP(r *http.Request) string {
	if h.cfg.TrustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
