package dto

import (
	"time"

	"github.com/codeduck/codeduck/internal/model"
)

// ExplainRequest is the body of POST /api/ai/explain.
type ExplainRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Context  string `json:"context,omitempty"`
}

// ExplainResponse is an admitted explanation.
type ExplainResponse struct {
	Explanation       string           `json:"explanation"`
	Suggestions       []string         `json:"suggestions,omitempty"`
	Complexity        model.Complexity `json:"complexity"`
	RequestID         string           `json:"requestId"`
	RemainingRequests int              `json:"remainingRequests"`
}

// UsageResponse is returned by GET /api/ai/usage.
type UsageResponse struct {
	Tier              model.Tier `json:"tier"`
	DailyLimit        int        `json:"dailyLimit"`
	RequestsToday     int        `json:"requestsToday"`
	RemainingRequests int        `json:"remainingRequests"`
}

// HistoryItem is one entry of GET /api/ai/history.
type HistoryItem struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	CreatedAt  time.Time        `json:"createdAt"`
	TokensUsed int              `json:"tokensUsed"`
	InputData  model.UsageInput `json:"inputData"`
}

// HistoryResponse is returned by GET /api/ai/history.
type HistoryResponse struct {
	Requests []HistoryItem `json:"requests"`
}

// ToHistory converts usage records to history items, keeping their order.
func ToHistory(records []*model.UsageRecord) []HistoryItem {
	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, HistoryItem{
			ID:         r.ID,
			Type:       r.RequestType,
			CreatedAt:  r.CreatedAt,
			TokensUsed: r.Cost,
			InputData:  r.Input,
		})
	}
	return items
}
