package model

import "time"

// RequestTypeExplain is the request type recorded for code explanations.
const RequestTypeExplain = "explain"

// UsageInput echoes the caller's payload on a usage record.
type UsageInput struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Context  string `json:"context,omitempty"`
}

// UsageRecord is one admitted AI request. Records are append-only.
type UsageRecord struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	RequestType string       `json:"type"`
	Cost        int          `json:"tokensUsed"`
	Input       UsageInput   `json:"inputData"`
	Output      *Explanation `json:"outputData,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
