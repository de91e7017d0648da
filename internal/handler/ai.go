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

// ExplainService is the AI gateway API used by the handlers.
type ExplainService interface {
	Explain(ctx context.Context, req service.ExplainRequest) (*service.ExplainResponse, error)
	Usage(ctx context.Context, userID string, tier model.Tier) (*service.UsageSummary, error)
	History(ctx context.Context, userID string) ([]*model.UsageRecord, error)
}

// UserResolver loads the user behind a session.
type UserResolver interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// AIHandler handles the AI gateway endpoints.
type AIHandler struct {
	svc   ExplainService
	users UserResolver
	errorWriter
}

// NewAIHandler creates a new AIHandler.
func NewAIHandler(svc ExplainService, users UserResolver, logger *slog.Logger) *AIHandler {
	return &AIHandler{svc: svc, users: users, errorWriter: errorWriter{logger: logger}}
}

// currentUser resolves the session user or writes the error reply.
func (h *AIHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		h.serviceError(w, r, service.ErrNoSession)
		return nil, false
	}
	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.serviceError(w, r, err)
		return nil, false
	}
	return user, true
}

// Explain handles POST /api/ai/explain.
func (h *AIHandler) Explain(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req dto.ExplainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Explain(r.Context(), service.ExplainRequest{
		UserID:   user.ID,
		Tier:     user.Tier,
		Code:     req.Code,
		Language: req.Language,
		Context:  req.Context,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ExplainResponse{
		Explanation:       res.Explanation.Explanation,
		Suggestions:       res.Suggestions,
		Complexity:        res.Complexity,
		RequestID:         res.RequestID,
		RemainingRequests: res.RemainingRequests,
	})
}

// Usage handles GET /api/ai/usage.
func (h *AIHandler) Usage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.Usage(r.Context(), user.ID, user.Tier)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.UsageResponse{
		Tier:              summary.Tier,
		DailyLimit:        summary.DailyLimit,
		RequestsToday:     summary.RequestsToday,
		RemainingRequests: summary.RemainingRequests,
	})
}

// History handles GET /api/ai/history.
func (h *AIHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		h.serviceError(w, r, service.ErrNoSession)
		return
	}

	records, err := h.svc.History(r.Context(), userID)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryResponse{Requests: dto.ToHistory(records)})
}
