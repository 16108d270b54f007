package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/marina/internal/auth"
	"github.com/your-org/marina/internal/storage"
	"github.com/your-org/marina/pkg/dto"
)

type UserHandler struct {
	db     *storage.PostgresStore
	tokens *auth.TokenService
}

func NewUserHandler(db *storage.PostgresStore, tokens *auth.TokenService) *UserHandler {
	return &UserHandler{db: db, tokens: tokens}
}

// Login exchanges username/password form credentials for an access token.
func (h *UserHandler) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.db.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "incorrect username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !auth.VerifyPassword(password, user.HashedPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "incorrect username or password"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "inactive user"})
		return
	}

	token, err := h.tokens.CreateAccessToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// CurrentUser returns the profile of the authenticated caller.
func (h *UserHandler) CurrentUser(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, dto.UserToResponse(user))
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.db.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, dto.UserToResponse(&users[i]))
	}

	c.JSON(http.StatusOK, gin.H{"users": resp, "total": len(resp)})
}
