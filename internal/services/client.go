package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/store"

	"github.com/google/uuid"
)

// ClientCredentials carries credentials extracted from a token request.
// Method records where they came from so auth-method restrictions can be
// enforced per client.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	Method       string // models.AuthMethodBasic, AuthMethodPost, or AuthMethodNone
}

// ClientService manages client registration and authentication.
type ClientService struct {
	store        *store.Store
	config       *config.Config
	cache        core.Cache[models.Client]
	auditService *AuditService
	metrics      core.Recorder
}

func NewClientService(
	s *store.Store,
	cfg *config.Config,
	cache core.Cache[models.Client],
	auditService *AuditService,
	m core.Recorder,
) *ClientService {
	return &ClientService{
		store:        s,
		config:       cfg,
		cache:        cache,
		auditService: auditService,
		metrics:      m,
	}
}

// GetClient fetches a client by client_id, via cache when configured.
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	if s.cache == nil {
		client, err := s.store.GetClient(clientID)
		if err != nil {
			return nil, ErrClientNotFound
		}
		return client, nil
	}

	client, err := s.cache.GetWithFetch(
		ctx,
		"client:"+clientID,
		s.config.ClientCacheTTL,
		func(_ context.Context, _ string) (models.Client, error) {
			c, err := s.store.GetClient(clientID)
			if err != nil {
				return models.Client{}, err
			}
			return *c, nil
		},
	)
	if err != nil {
		return nil, ErrClientNotFound
	}
	return &client, nil
}

// Authenticate verifies client credentials for the token endpoint.
//
// Confidential clients must present a valid secret via their registered
// auth method. Public clients present no secret; their identity is bound
// by PKCE instead. Failures return ErrInvalidClient uniformly so callers
// cannot distinguish unknown clients from bad secrets.
func (s *ClientService) Authenticate(
	ctx context.Context,
	creds ClientCredentials,
) (*models.Client, error) {
	start := time.Now()
	client, err := s.authenticate(ctx, creds)
	success := err == nil
	if s.metrics != nil {
		s.metrics.RecordClientAuthAttempt(creds.Method, success, time.Since(start))
	}

	if !success && s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventClientAuthFailure,
			Severity:      models.SeverityWarning,
			ActorClientID: creds.ClientID,
			ResourceType:  models.ResourceClient,
			ResourceID:    creds.ClientID,
			Action:        "Client authentication failed",
			Details:       models.AuditDetails{"auth_method": creds.Method},
			Success:       false,
			ErrorMessage:  err.Error(),
		})
	}
	return client, err
}

func (s *ClientService) authenticate(
	ctx context.Context,
	creds ClientCredentials,
) (*models.Client, error) {
	if creds.ClientID == "" {
		return nil, ErrInvalidClient
	}

	client, err := s.GetClient(ctx, creds.ClientID)
	if err != nil || !client.IsActive {
		return nil, ErrInvalidClient
	}

	if client.IsPublic() {
		// Public clients never hold a secret; presenting one is a
		// misconfigured client, not a credential to verify.
		if creds.ClientSecret != "" {
			return nil, ErrInvalidClient
		}
		return client, nil
	}

	// Confidential client: secret required, via the registered method
	if creds.ClientSecret == "" {
		return nil, ErrInvalidClient
	}
	if client.AuthMethod != "" && creds.Method != client.AuthMethod {
		log.Printf("[Client] Auth method mismatch for client=%s: got %s, registered %s",
			creds.ClientID, creds.Method, client.AuthMethod)
		return nil, ErrInvalidClient
	}
	if !client.ValidateClientSecret([]byte(creds.ClientSecret)) {
		return nil, ErrInvalidClient
	}

	return client, nil
}

// CreateClientRequest holds input for registering a new client.
type CreateClientRequest struct {
	ClientName   string
	Description  string
	Scopes       string
	GrantTypes   string
	RedirectURIs []string
	ClientType   string
	AuthMethod   string
	RequirePKCE  bool
	CreatedBy    string
}

// ClientResponse pairs a client with its plaintext secret, which is only
// populated at creation or regeneration time.
type ClientResponse struct {
	*models.Client
	ClientSecretPlain string
}

// CreateClient registers a new client. Confidential clients receive a
// generated secret, returned once in plaintext.
func (s *ClientService) CreateClient(ctx context.Context, req CreateClientRequest) (*ClientResponse, error) {
	if strings.TrimSpace(req.ClientName) == "" {
		return nil, ErrInvalidRequest
	}

	clientType := req.ClientType
	if clientType == "" {
		clientType = models.ClientTypeConfidential
	}

	authMethod := req.AuthMethod
	if authMethod == "" {
		if clientType == models.ClientTypePublic {
			authMethod = models.AuthMethodNone
		} else {
			authMethod = models.AuthMethodBasic
		}
	}

	grantTypes := strings.TrimSpace(req.GrantTypes)
	if grantTypes == "" {
		grantTypes = "authorization_code refresh_token"
	}

	scopes := strings.TrimSpace(req.Scopes)
	if scopes == "" {
		scopes = "openid profile"
	}

	client := &models.Client{
		ClientID:     uuid.New().String(),
		ClientName:   strings.TrimSpace(req.ClientName),
		Description:  strings.TrimSpace(req.Description),
		Scopes:       scopes,
		GrantTypes:   grantTypes,
		RedirectURIs: req.RedirectURIs,
		ClientType:   clientType,
		AuthMethod:   authMethod,
		RequirePKCE:  req.RequirePKCE || clientType == models.ClientTypePublic,
		IsActive:     true,
		CreatedBy:    req.CreatedBy,
	}

	var plainSecret string
	if clientType == models.ClientTypeConfidential {
		secret, err := client.GenerateClientSecret(ctx)
		if err != nil {
			return nil, err
		}
		plainSecret = secret
	}

	if err := s.store.CreateClient(client); err != nil {
		return nil, err
	}

	return &ClientResponse{
		Client:            client,
		ClientSecretPlain: plainSecret,
	}, nil
}

// RegenerateSecret replaces a confidential client's secret, returning the
// new plaintext once.
func (s *ClientService) RegenerateSecret(ctx context.Context, clientID string) (string, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return "", ErrClientNotFound
	}
	if client.IsPublic() {
		return "", ErrInvalidRequest
	}

	newSecret, err := client.GenerateClientSecret(ctx)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateClient(client); err != nil {
		return "", err
	}
	s.invalidate(ctx, clientID)

	return newSecret, nil
}

// DeactivateClient disables a client without deleting its history.
func (s *ClientService) DeactivateClient(ctx context.Context, clientID string) error {
	if _, err := s.store.GetClient(clientID); err != nil {
		return ErrClientNotFound
	}
	if err := s.store.DeactivateClient(clientID); err != nil {
		return err
	}
	s.invalidate(ctx, clientID)
	return nil
}

func (s *ClientService) ListClients() ([]models.Client, error) {
	return s.store.ListClients()
}

func (s *ClientService) invalidate(ctx context.Context, clientID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, "client:"+clientID); err != nil {
		log.Printf("[Client] Cache invalidation failed for client=%s: %v", clientID, err)
	}
}
