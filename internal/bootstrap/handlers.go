package bootstrap

import (
	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/handlers"
	"github.com/go-tokengate/tokengate/internal/keys"
	"github.com/go-tokengate/tokengate/internal/services"
)

// handlerSet holds all HTTP handlers and required services
type handlerSet struct {
	token         *handlers.TokenHandler
	authorization *handlers.AuthorizationHandler
	oidc          *handlers.OIDCHandler
	jwks          *handlers.JWKSHandler
	client        *handlers.ClientHandler
	audit         *handlers.AuditHandler
	user          *handlers.UserHandler
	userService   *services.UserService
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(
	cfg *config.Config,
	km *keys.Manager,
	userService *services.UserService,
	clientService *services.ClientService,
	authorizationService *services.AuthorizationService,
	tokenService *services.TokenService,
	revocationService *services.RevocationService,
	verificationService *services.VerificationService,
	auditService *services.AuditService,
) handlerSet {
	return handlerSet{
		token: handlers.NewTokenHandler(
			tokenService,
			clientService,
			revocationService,
			verificationService,
			cfg,
		),
		authorization: handlers.NewAuthorizationHandler(
			authorizationService,
			userService,
			cfg,
		),
		oidc:        handlers.NewOIDCHandler(verificationService, userService, cfg),
		jwks:        handlers.NewJWKSHandler(km, cfg),
		client:      handlers.NewClientHandler(clientService),
		audit:       handlers.NewAuditHandler(auditService),
		user:        handlers.NewUserHandler(userService),
		userService: userService,
	}
}
