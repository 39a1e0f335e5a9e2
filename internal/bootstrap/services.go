package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"

	retry "github.com/appleboy/go-httpretry"
)

// serviceSet holds all business logic services
type serviceSet struct {
	user          *services.UserService
	client        *services.ClientService
	authorization *services.AuthorizationService
	token         *services.TokenService
	revocation    *services.RevocationService
	verification  *services.VerificationService
}

// initializeServices creates all business logic services
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	signer *token.Signer,
	blacklistCache core.Cache[bool],
	clientCache core.Cache[models.Client],
	auditService *services.AuditService,
	m core.Recorder,
) (serviceSet, error) {
	// Permission resolver (static or external policy API with retry)
	retryClient, err := createPolicyRetryClient(cfg)
	if err != nil {
		return serviceSet{}, err
	}
	resolver, err := services.NewResolver(cfg, retryClient, m)
	if err != nil {
		return serviceSet{}, fmt.Errorf("failed to initialize permission resolver: %w", err)
	}

	userService := services.NewUserService(db)
	clientService := services.NewClientService(db, cfg, clientCache, auditService, m)
	authorizationService := services.NewAuthorizationService(db, cfg, auditService, m)
	tokenService := services.NewTokenService(
		db,
		cfg,
		signer,
		resolver,
		authorizationService,
		auditService,
		m,
	)
	revocationService := services.NewRevocationService(db, signer, auditService, m)
	verificationService := services.NewVerificationService(db, cfg, signer, blacklistCache, m)

	return serviceSet{
		user:          userService,
		client:        clientService,
		authorization: authorizationService,
		token:         tokenService,
		revocation:    revocationService,
		verification:  verificationService,
	}, nil
}

// createPolicyRetryClient creates the retrying HTTP client used for policy
// API lookups. Returns nil when the static resolver is configured.
func createPolicyRetryClient(cfg *config.Config) (*retry.Client, error) {
	if cfg.PolicyMode != config.PolicyModeHTTPAPI {
		return nil, nil //nolint:nilnil // resolver does not reach the network in static mode
	}

	httpClient := &http.Client{
		Timeout: cfg.PolicyAPITimeout,
		Transport: &headerTransport{
			base:   http.DefaultTransport,
			header: cfg.PolicyAPIAuthHeader,
			secret: cfg.PolicyAPIAuthSecret,
		},
	}

	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(httpClient),
		retry.WithMaxRetries(cfg.PolicyAPIMaxRetries),
		retry.WithInitialRetryDelay(cfg.PolicyAPIRetryDelay),
		retry.WithMaxRetryDelay(cfg.PolicyAPIMaxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy retry client: %w", err)
	}
	return retryClient, nil
}

// headerTransport injects the policy API shared-secret header on every request
type headerTransport struct {
	base   http.RoundTripper
	header string
	secret string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.secret != "" && t.header != "" {
		req = req.Clone(req.Context())
		req.Header.Set(t.header, t.secret)
	}
	return t.base.RoundTrip(req)
}
