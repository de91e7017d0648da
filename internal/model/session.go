package model

// Session is the authenticated caller attached to a request by the
// session middleware. Handlers pass its fields explicitly to services.
type Session struct {
	UserID string
	Email  string
}
