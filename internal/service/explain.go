package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/codeduck/codeduck/internal/clock"
	"github.com/codeduck/codeduck/internal/metrics"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/quota"
)

const (
	// MaxCodeLength is the longest snippet accepted, in characters.
	MaxCodeLength = 10000
	// HistoryLimit is how many past requests History returns.
	HistoryLimit = 20
	// DefaultLanguage is recorded when the caller names none.
	DefaultLanguage = "unknown"
)

// UsageLedger stores admitted AI requests.
type UsageLedger interface {
	CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error)
	AppendUsage(ctx context.Context, rec *model.UsageRecord) error
	ListRecentUsage(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error)
}

// CodeExplainer is the AI provider.
type CodeExplainer interface {
	Explain(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error)
}

// ExplainRequest is a caller's explain call. UserID and Tier come from the
// resolved session.
type ExplainRequest struct {
	UserID   string
	Tier     model.Tier
	Code     string
	Language string
	Context  string
}

// ExplainResponse is an admitted and recorded explanation.
type ExplainResponse struct {
	model.Explanation
	RequestID         string
	RemainingRequests int
}

// UsageSummary is a user's quota position for the current day.
type UsageSummary struct {
	Tier              model.Tier
	DailyLimit        int
	RequestsToday     int
	RemainingRequests int
}

// ExplainService is the AI gateway. It checks the daily quota, calls the
// provider and records the admitted request.
type ExplainService struct {
	ledger    UsageLedger
	explainer CodeExplainer
	policy    *quota.Policy
	calendar  *clock.Calendar
	timeout   time.Duration
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewExplainService creates a new ExplainService. timeout bounds each
// provider call.
func NewExplainService(
	ledger UsageLedger,
	explainer CodeExplainer,
	policy *quota.Policy,
	calendar *clock.Calendar,
	timeout time.Duration,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *ExplainService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if calendar == nil {
		calendar = clock.NewCalendar(nil, nil)
	}
	return &ExplainService{
		ledger:    ledger,
		explainer: explainer,
		policy:    policy,
		calendar:  calendar,
		timeout:   timeout,
		metrics:   recorder,
		logger:    logger,
	}
}

// Explain runs one explain request.
//
// The provider is called only when the quota admits the request, and the
// ledger is written only after the provider answered and the caller is still
// waiting. A failed ledger write discards the answer.
func (s *ExplainService) Explain(ctx context.Context, req ExplainRequest) (*ExplainResponse, error) {
	if err := validateCode(req.Code); err != nil {
		s.metrics.IncExplain(metrics.ExplainInvalid)
		return nil, err
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = DefaultLanguage
	}

	used, err := s.ledger.CountUsageSince(ctx, req.UserID, s.calendar.StartOfToday())
	if err != nil {
		s.metrics.IncExplain(metrics.ExplainStorageFailed)
		return nil, fmt.Errorf("%w: count usage: %w", ErrStorageFailure, err)
	}

	decision := s.policy.Evaluate(req.Tier, used)
	if !decision.Admitted {
		s.metrics.IncExplain(metrics.ExplainDenied)
		s.logger.Info("explain_denied", "user_id", req.UserID, "tier", req.Tier, "limit", decision.Limit, "used", used)
		return nil, &QuotaExceededError{Limit: decision.Limit, Used: used}
	}

	result, err := s.callProvider(ctx, model.ExplainInput{Code: req.Code, Language: language, Context: req.Context})
	if err != nil {
		s.metrics.IncExplain(metrics.ExplainUpstreamFailed)
		s.logger.Warn("explain_upstream_failed", "user_id", req.UserID, "error", err)
		return nil, err
	}

	record := &model.UsageRecord{
		ID:          ulid.Make().String(),
		UserID:      req.UserID,
		RequestType: model.RequestTypeExplain,
		Cost:        requestCost(result.TokensUsed, req.Code),
		Input:       model.UsageInput{Code: req.Code, Language: language, Context: req.Context},
		Output:      &result.Explanation,
		CreatedAt:   s.calendar.Now().UTC(),
	}
	if err := s.ledger.AppendUsage(ctx, record); err != nil {
		s.metrics.IncExplain(metrics.ExplainStorageFailed)
		s.logger.Error("explain_storage_failed", "user_id", req.UserID, "error", err)
		return nil, fmt.Errorf("%w: append usage: %w", ErrStorageFailure, err)
	}

	s.metrics.IncExplain(metrics.ExplainCompleted)
	s.logger.Info("explain_completed",
		"user_id", req.UserID,
		"request_id", record.ID,
		"cost", record.Cost,
		"remaining", decision.Remaining,
	)

	return &ExplainResponse{
		Explanation:       result.Explanation,
		RequestID:         record.ID,
		RemainingRequests: decision.Remaining,
	}, nil
}

// callProvider calls the AI provider under the configured timeout and maps
// its failures. A caller that went away while the provider was working is
// reported as an upstream failure so nothing is recorded.
func (s *ExplainService) callProvider(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.explainer.Explain(callCtx, in)
	s.metrics.ObserveProviderDuration(time.Since(start))

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamError, err)
		}
		return nil, upstreamError(err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: empty provider result", ErrUpstreamError)
	}
	return result, nil
}

// Usage reports today's quota position.
func (s *ExplainService) Usage(ctx context.Context, userID string, tier model.Tier) (*UsageSummary, error) {
	used, err := s.ledger.CountUsageSince(ctx, userID, s.calendar.StartOfToday())
	if err != nil {
		return nil, fmt.Errorf("%w: count usage: %w", ErrStorageFailure, err)
	}

	limit := s.policy.Limit(tier)
	return &UsageSummary{
		Tier:              tier,
		DailyLimit:        limit,
		RequestsToday:     used,
		RemainingRequests: max(0, limit-used),
	}, nil
}

// History returns the user's most recent requests, newest first.
func (s *ExplainService) History(ctx context.Context, userID string) ([]*model.UsageRecord, error) {
	records, err := s.ledger.ListRecentUsage(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: list usage: %w", ErrStorageFailure, err)
	}
	return records, nil
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return invalid("code", "Code is required")
	}
	if utf8.RuneCountInString(code) > MaxCodeLength {
		return invalid("code", fmt.Sprintf("Code too long. Maximum %d characters allowed.", MaxCodeLength))
	}
	return nil
}

// requestCost is the provider-reported token count, or an estimate of one
// token per four characters when the provider reported none.
func requestCost(tokensUsed int, code string) int {
	if tokensUsed > 0 {
		return tokensUsed
	}
	n := utf8.RuneCountInString(code)
	return (n + 3) / 4
}
