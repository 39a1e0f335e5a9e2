package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/keys"

	"github.com/gin-gonic/gin"
)

// JWKSHandler serves the public signing keys.
type JWKSHandler struct {
	keys   *keys.Manager
	config *config.Config
}

func NewJWKSHandler(km *keys.Manager, cfg *config.Config) *JWKSHandler {
	return &JWKSHandler{
		keys:   km,
		config: cfg,
	}
}

// JWKS godoc
//
//	@Summary		JSON Web Key Set
//	@Description	Public keys for verifying issued tokens (RFC 7517). Retired keys stay in the set until all tokens signed with them have expired.
//	@Tags			OIDC
//	@Produce		json
//	@Success		200	{object}	object{keys=[]object}	"Key set"
//	@Router			/.well-known/jwks.json [get]
func (h *JWKSHandler) JWKS(c *gin.Context) {
	// Resource servers on other origins fetch this document directly
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.config.JWKSCacheMaxAge.Seconds())))
	c.JSON(http.StatusOK, h.keys.JWKS())
}
