package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHandler exposes the admin user inspection API.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(us *services.UserService) *UserHandler {
	return &UserHandler{userService: us}
}

// accessTokenView is the wire representation of an issued access token.
// Token hashes never leave the server.
type accessTokenView struct {
	JTI       string    `json:"jti"`
	ClientID  string    `json:"client_id"`
	Scopes    string    `json:"scopes"`
	Active    bool      `json:"active"`
	Revoked   bool      `json:"revoked"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toAccessTokenView(t *models.AccessToken) accessTokenView {
	return accessTokenView{
		JTI:       t.JTI,
		ClientID:  t.ClientID,
		Scopes:    t.Scopes,
		Active:    t.IsUsable(),
		Revoked:   t.Revoked,
		IssuedAt:  t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}

// ListUserTokens returns the access tokens issued to one user
// (GET /admin/users/:id/tokens), newest first.
func (h *UserHandler) ListUserTokens(c *gin.Context) {
	tokens, err := h.userService.ListAccessTokens(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "not_found",
				"error_description": "User not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to load tokens",
		})
		return
	}

	views := make([]accessTokenView, 0, len(tokens))
	for i := range tokens {
		views = append(views, toAccessTokenView(&tokens[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tokens": views})
}
