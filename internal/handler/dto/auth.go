package dto

import (
	"time"

	"github.com/codeduck/codeduck/internal/model"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      *string    `json:"name"`
	Tier      model.Tier `json:"tier"`
	CreatedAt time.Time  `json:"createdAt"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// ProfileCounts summarizes what a user owns.
type ProfileCounts struct {
	GitHubAccounts int `json:"githubAccounts"`
	AIRequests     int `json:"aiRequests"`
}

// ProfileUser is a user with their counters.
type ProfileUser struct {
	UserResponse
	Count ProfileCounts `json:"_count"`
}

// ProfileResponse is returned by GET /api/auth/me.
type ProfileResponse struct {
	User ProfileUser `json:"user"`
}

// ToUserResponse converts a user to its public view.
func ToUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Tier:      u.Tier,
		CreatedAt: u.CreatedAt,
	}
}

// ToProfileResponse combines a user with their counters.
func ToProfileResponse(u *model.User, stats *model.UserStats) ProfileResponse {
	return ProfileResponse{User: ProfileUser{
		UserResponse: ToUserResponse(u),
		Count: ProfileCounts{
			GitHubAccounts: stats.GitHubAccounts,
			AIRequests:     stats.AIRequests,
		},
	}}
}
