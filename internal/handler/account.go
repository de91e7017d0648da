package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/handler/dto"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/service"
)

// AccountService is the account API used by the handlers.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	Profile(ctx context.Context, userID string) (*model.User, *model.UserStats, error)
}

// AccountHandler handles registration, login and the current user.
type AccountHandler struct {
	svc AccountService
	errorWriter
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, errorWriter: errorWriter{logger: logger}}
}

// Register handles POST /api/auth/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AuthResponse{User: dto.ToUserResponse(res.User), Token: res.Token})
}

// Login handles POST /api/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuthResponse{User: dto.ToUserResponse(res.User), Token: res.Token})
}

// Me handles GET /api/auth/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		h.serviceError(w, r, service.ErrNoSession)
		return
	}

	user, stats, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToProfileResponse(user, stats))
}
