// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// QuotaErrorResponse is returned when the daily AI limit is reached.
type QuotaErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Limit int    `json:"limit"`
	Used  int    `json:"used"`
}
