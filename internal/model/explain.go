package model

// Complexity grades a code snippet.
type Complexity string

// Complexity levels.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ParseComplexity returns the complexity named by s and whether it is valid.
func ParseComplexity(s string) (Complexity, bool) {
	switch Complexity(s) {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return Complexity(s), true
	default:
		return "", false
	}
}

// ExplainInput is the payload sent to the AI provider.
type ExplainInput struct {
	Code     string
	Language string
	Context  string
}

// Explanation is the structured answer returned to the caller.
type Explanation struct {
	Explanation string     `json:"explanation"`
	Suggestions []string   `json:"suggestions,omitempty"`
	Complexity  Complexity `json:"complexity"`
}

// ExplainResult is a successful provider answer. TokensUsed is zero when the
// provider did not report usage.
type ExplainResult struct {
	Explanation
	TokensUsed int
}
