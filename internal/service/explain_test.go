package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeduck/codeduck/internal/clock"
	"github.com/codeduck/codeduck/internal/metrics"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/provider"
	"github.com/codeduck/codeduck/internal/quota"
)

var testNow = time.Date(2026, 5, 14, 15, 30, 0, 0, time.UTC)

type gatewayEnv struct {
	svc       *ExplainService
	ledger    *fakeLedger
	explainer *fakeExplainer
	clock     *clock.Manual
	metrics   *metrics.InMemoryRecorder
}

func newGatewayEnv(t *testing.T, timeout time.Duration) *gatewayEnv {
	t.Helper()

	policy, err := quota.NewPolicy(nil)
	require.NoError(t, err)

	env := &gatewayEnv{
		ledger:    &fakeLedger{},
		explainer: &fakeExplainer{},
		clock:     clock.NewManual(testNow),
		metrics:   metrics.NewInMemory(),
	}
	env.svc = NewExplainService(
		env.ledger,
		env.explainer,
		policy,
		clock.NewCalendar(env.clock, time.UTC),
		timeout,
		env.metrics,
		nil,
	)
	return env
}

func explainReq(userID string, tier model.Tier) ExplainRequest {
	return ExplainRequest{UserID: userID, Tier: tier, Code: "for i := range xs { sum += i }", Language: "go"}
}

func TestExplain_Validation(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"whitespace", " \n\t "},
		{"too long", strings.Repeat("é", MaxCodeLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newGatewayEnv(t, time.Second)

			req := explainReq("u1", model.TierFree)
			req.Code = tt.code
			_, err := env.svc.Explain(context.Background(), req)

			assert.ErrorIs(t, err, ErrValidation)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, "code", vErr.Field)
			assert.Zero(t, env.explainer.callCount())
			assert.Zero(t, env.ledger.len())
		})
	}
}

func TestExplain_MaxLengthCountsCharacters(t *testing.T) {
	env := newGatewayEnv(t, time.Second)

	req := explainReq("u1", model.TierFree)
	req.Code = strings.Repeat("é", MaxCodeLength)
	_, err := env.svc.Explain(context.Background(), req)
	require.NoError(t, err)
}

func TestExplain_LastFreeRequestThenDenied(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	env.ledger.seed("u1", 14, testNow.Add(-time.Hour))

	resp, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.RemainingRequests)
	assert.Equal(t, "It works.", resp.Explanation.Explanation)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 15, env.ledger.len())

	_, err = env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
	var qErr *QuotaExceededError
	require.True(t, errors.As(err, &qErr))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 15, qErr.Limit)
	assert.Equal(t, 15, qErr.Used)

	assert.Equal(t, 1, env.explainer.callCount(), "denied requests never reach the provider")
	assert.Equal(t, 15, env.ledger.len(), "denied requests are not recorded")

	snap := env.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.Explains[metrics.ExplainCompleted])
	assert.Equal(t, uint64(1), snap.Explains[metrics.ExplainDenied])
}

func TestExplain_ProTierLimit(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	env.ledger.seed("u1", 20, testNow.Add(-time.Minute))

	resp, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierPro))
	require.NoError(t, err)
	assert.Equal(t, 200-20-1, resp.RemainingRequests)
}

func TestExplain_YesterdayDoesNotCount(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	midnight := time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC)
	env.ledger.seed("u1", 15, midnight.Add(-time.Nanosecond))
	env.ledger.seed("u2", 15, midnight)

	_, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
	require.NoError(t, err, "records before midnight belong to yesterday")

	_, err = env.svc.Explain(context.Background(), explainReq("u2", model.TierFree))
	assert.ErrorIs(t, err, ErrQuotaExceeded, "records at midnight belong to today")
}

func TestExplain_ProviderFailuresDoNotRecord(t *testing.T) {
	tests := []struct {
		name        string
		providerErr error
		want        error
	}{
		{"rate limited", provider.ErrRateLimited, ErrUpstreamRateLimited},
		{"auth failed", provider.ErrAuthFailed, ErrUpstreamAuthFailure},
		{"unavailable", fmt.Errorf("%w: status 503", provider.ErrUnavailable), ErrUpstreamUnavailable},
		{"malformed", provider.ErrMalformedResponse, ErrUpstreamError},
		{"unknown", errors.New("boom"), ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newGatewayEnv(t, time.Second)
			env.ledger.seed("u1", 3, testNow.Add(-time.Minute))
			env.explainer.fn = func(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
				return nil, tt.providerErr
			}

			_, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
			assert.ErrorIs(t, err, tt.want)

			used, cErr := env.ledger.CountUsageSince(context.Background(), "u1", testNow.Add(-24*time.Hour))
			require.NoError(t, cErr)
			assert.Equal(t, 3, used, "a provider failure never increases the count")
			assert.Zero(t, env.ledger.appends)
		})
	}
}

func TestExplain_ProviderTimeout(t *testing.T) {
	env := newGatewayEnv(t, 20*time.Millisecond)
	env.explainer.fn = func(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Zero(t, env.ledger.appends)
}

func TestExplain_CanceledCallerNeverRecords(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	env.explainer.fn = func(_ context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
		cancel()
		return &model.ExplainResult{Explanation: model.Explanation{Explanation: "late"}}, nil
	}

	_, err := env.svc.Explain(ctx, explainReq("u1", model.TierFree))
	assert.ErrorIs(t, err, ErrUpstreamError)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.ledger.appends)
}

func TestExplain_StorageFailureDiscardsAnswer(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	env.ledger.appendErr = errors.New("connection reset")

	resp, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, 1, env.explainer.callCount())
}

func TestExplain_CountFailure(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	env.ledger.countErr = errors.New("db down")

	_, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Zero(t, env.explainer.callCount())
}

func TestExplain_RecordContents(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	env.explainer.fn = func(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
		assert.Equal(t, "unknown", in.Language)
		assert.Equal(t, "hot path", in.Context)
		return &model.ExplainResult{Explanation: model.Explanation{Explanation: "x", Complexity: model.ComplexityHigh}}, nil
	}

	req := ExplainRequest{UserID: "u1", Tier: model.TierFree, Code: "abcde", Context: "hot path"}
	resp, err := env.svc.Explain(context.Background(), req)
	require.NoError(t, err)

	records, err := env.svc.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, resp.RequestID, rec.ID)
	assert.Equal(t, model.RequestTypeExplain, rec.RequestType)
	assert.Equal(t, 2, rec.Cost, "ceil(5/4) when the provider reports no tokens")
	assert.Equal(t, "abcde", rec.Input.Code)
	assert.True(t, rec.CreatedAt.Equal(testNow))
	require.NotNil(t, rec.Output)
	assert.Equal(t, model.ComplexityHigh, rec.Output.Complexity)
}

func TestRequestCost(t *testing.T) {
	assert.Equal(t, 42, requestCost(42, "abc"))
	assert.Equal(t, 1, requestCost(0, "a"))
	assert.Equal(t, 1, requestCost(0, "abcd"))
	assert.Equal(t, 2, requestCost(0, "abcde"))
	assert.Equal(t, 1, requestCost(0, "éé"))
}

func TestUsage(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	env.ledger.seed("u1", 4, testNow.Add(-time.Hour))
	env.ledger.seed("u2", 40, testNow.Add(-time.Hour))

	summary, err := env.svc.Usage(context.Background(), "u1", model.TierFree)
	require.NoError(t, err)
	assert.Equal(t, &UsageSummary{Tier: model.TierFree, DailyLimit: 15, RequestsToday: 4, RemainingRequests: 11}, summary)

	summary, err = env.svc.Usage(context.Background(), "u2", model.TierFree)
	require.NoError(t, err)
	assert.Zero(t, summary.RemainingRequests, "remaining never goes negative")
}

func TestHistory_LimitsAndOrders(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	for i := 0; i < HistoryLimit+5; i++ {
		env.ledger.seed("u1", 1, testNow.Add(time.Duration(i)*time.Second))
	}

	records, err := env.svc.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, HistoryLimit)
	assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))
}

// Two requests arriving together at limit-1 may both be admitted. The
// overshoot is bounded by one per concurrent burst.
func TestExplain_ConcurrentBurstOverAdmitsAtMostOne(t *testing.T) {
	env := newGatewayEnv(t, 5*time.Second)
	env.ledger.seed("u1", 14, testNow.Add(-time.Hour))

	const burst = 2
	var arrived sync.WaitGroup
	arrived.Add(burst)
	release := make(chan struct{})
	env.explainer.fn = func(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
		arrived.Done()
		<-release
		return &model.ExplainResult{Explanation: model.Explanation{Explanation: "ok"}, TokensUsed: 1}, nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		okN    int
		denied int
	)
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okN++
			case errors.Is(err, ErrQuotaExceeded):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	// Both requests counted usage before either recorded, so both reach the provider.
	arrived.Wait()
	close(release)
	wg.Wait()

	assert.Equal(t, burst, okN+denied)
	assert.LessOrEqual(t, env.ledger.len(), 15+1, "at most one over-admission per burst")

	_, err := env.svc.Explain(context.Background(), explainReq("u1", model.TierFree))
	assert.ErrorIs(t, err, ErrQuotaExceeded, "the burst leaves the user at or over the limit")
}
