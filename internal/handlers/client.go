package handlers

import (
	"errors"
	"net/http"

	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"

	"github.com/gin-gonic/gin"
)

// ClientHandler exposes the admin client registry API.
type ClientHandler struct {
	clientService *services.ClientService
}

func NewClientHandler(cs *services.ClientService) *ClientHandler {
	return &ClientHandler{clientService: cs}
}

// clientView is the wire representation of a client; the hashed secret
// never leaves the server.
type clientView struct {
	ClientID     string   `json:"client_id"`
	ClientName   string   `json:"client_name"`
	Description  string   `json:"description,omitempty"`
	Scopes       string   `json:"scopes"`
	GrantTypes   string   `json:"grant_types"`
	RedirectURIs []string `json:"redirect_uris"`
	ClientType   string   `json:"client_type"`
	AuthMethod   string   `json:"auth_method"`
	RequirePKCE  bool     `json:"require_pkce"`
	IsActive     bool     `json:"is_active"`
}

func toClientView(client *models.Client) clientView {
	return clientView{
		ClientID:     client.ClientID,
		ClientName:   client.ClientName,
		Description:  client.Description,
		Scopes:       client.Scopes,
		GrantTypes:   client.GrantTypes,
		RedirectURIs: client.RedirectURIs,
		ClientType:   client.ClientType,
		AuthMethod:   client.AuthMethod,
		RequirePKCE:  client.RequirePKCE,
		IsActive:     client.IsActive,
	}
}

// ListClients returns every registered client (GET /admin/clients).
func (h *ClientHandler) ListClients(c *gin.Context) {
	clients, err := h.clientService.ListClients()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to load clients",
		})
		return
	}

	views := make([]clientView, 0, len(clients))
	for i := range clients {
		views = append(views, toClientView(&clients[i]))
	}
	c.JSON(http.StatusOK, gin.H{"clients": views})
}

// GetClient returns one client (GET /admin/clients/:id).
func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clientService.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "Client not found",
		})
		return
	}
	c.JSON(http.StatusOK, toClientView(client))
}

type createClientRequest struct {
	ClientName   string   `json:"client_name" binding:"required"`
	Description  string   `json:"description"`
	Scopes       string   `json:"scopes"`
	GrantTypes   string   `json:"grant_types"`
	RedirectURIs []string `json:"redirect_uris"`
	ClientType   string   `json:"client_type"`
	AuthMethod   string   `json:"auth_method"`
	RequirePKCE  bool     `json:"require_pkce"`
}

// CreateClient registers a new client (POST /admin/clients). The plaintext
// secret is returned once and never again.
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	resp, err := h.clientService.CreateClient(c.Request.Context(), services.CreateClientRequest{
		ClientName:   req.ClientName,
		Description:  req.Description,
		Scopes:       req.Scopes,
		GrantTypes:   req.GrantTypes,
		RedirectURIs: req.RedirectURIs,
		ClientType:   req.ClientType,
		AuthMethod:   req.AuthMethod,
		RequirePKCE:  req.RequirePKCE,
		CreatedBy:    c.GetString("user_id"),
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "server_error"
		if errors.Is(err, services.ErrInvalidRequest) {
			status = http.StatusBadRequest
			code = "invalid_request"
		}
		c.JSON(status, gin.H{
			"error":             code,
			"error_description": "Failed to create client",
		})
		return
	}

	body := gin.H{"client": toClientView(resp.Client)}
	if resp.ClientSecretPlain != "" {
		body["client_secret"] = resp.ClientSecretPlain
	}
	c.JSON(http.StatusCreated, body)
}

// RegenerateSecret replaces a confidential client's secret
// (POST /admin/clients/:id/secret). The new plaintext is returned once.
func (h *ClientHandler) RegenerateSecret(c *gin.Context) {
	clientID := c.Param("id")

	newSecret, err := h.clientService.RegenerateSecret(c.Request.Context(), clientID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrClientNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "not_found",
				"error_description": "Client not found",
			})
		case errors.Is(err, services.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "Public clients have no secret",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Failed to regenerate secret",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id":     clientID,
		"client_secret": newSecret,
	})
}

// DeactivateClient disables a client (DELETE /admin/clients/:id).
// Existing tokens keep their own lifecycle; new grants are refused.
func (h *ClientHandler) DeactivateClient(c *gin.Context) {
	clientID := c.Param("id")

	if err := h.clientService.DeactivateClient(c.Request.Context(), clientID); err != nil {
		if errors.Is(err, services.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "not_found",
				"error_description": "Client not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to deactivate client",
		})
		return
	}

	c.Status(http.StatusNoContent)
}
