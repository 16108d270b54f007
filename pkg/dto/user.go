package dto

import "github.com/your-org/marina/internal/models"

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type UserResponse struct {
	ID       int64       `json:"id"`
	FullName string      `json:"full_name"`
	Username string      `json:"username"`
	Email    string      `json:"email,omitempty"`
	Role     models.Role `json:"role"`
	IsActive bool        `json:"is_active"`
}

func UserToResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		FullName: u.FullName,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		IsActive: u.IsActive,
	}
}
