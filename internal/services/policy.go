package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	httpretry "github.com/appleboy/go-httpretry"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/token"
)

var (
	ErrPolicyConnection  = errors.New("policy API connection failed")
	ErrPolicyInvalidResp = errors.New("policy API returned invalid response")
)

// PermissionResolver resolves the permission snapshot embedded into access
// tokens at issuance time. Tokens carry the snapshot for their lifetime;
// later policy changes do not affect already-issued tokens.
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, userID, clientID string, scopes []string) ([]string, error)
}

// StaticResolver derives permissions from scopes alone. This is the default
// mode: each granted scope maps to a same-named permission.
type StaticResolver struct{}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{}
}

func (r *StaticResolver) ResolvePermissions(
	_ context.Context,
	_, _ string,
	scopes []string,
) ([]string, error) {
	perms := make([]string, 0, len(scopes))
	for _, s := range scopes {
		// OIDC claim scopes are not resource permissions
		if s == token.ScopeOpenID || s == token.ScopeOfflineAccess {
			continue
		}
		perms = append(perms, s)
	}
	return perms, nil
}

// HTTPResolver queries an external policy API for a user's effective
// permissions, with retry on transient failures.
type HTTPResolver struct {
	config      *config.Config
	retryClient *httpretry.Client
	metrics     core.Recorder
}

// NewHTTPResolver creates an HTTPResolver backed by a retrying HTTP client.
func NewHTTPResolver(cfg *config.Config, retryClient *httpretry.Client, m core.Recorder) *HTTPResolver {
	return &HTTPResolver{
		config:      cfg,
		retryClient: retryClient,
		metrics:     m,
	}
}

// policyRequest is the payload sent to the external policy API.
type policyRequest struct {
	UserID   string   `json:"user_id"`
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

// policyResponse is the expected response from the external policy API.
type policyResponse struct {
	Success     bool     `json:"success"`
	Permissions []string `json:"permissions"`
	Message     string   `json:"message,omitempty"`
}

func (r *HTTPResolver) ResolvePermissions(
	ctx context.Context,
	userID, clientID string,
	scopes []string,
) ([]string, error) {
	start := time.Now()
	perms, err := r.resolve(ctx, userID, clientID, scopes)
	if r.metrics != nil {
		r.metrics.RecordPolicyLookup(config.PolicyModeHTTPAPI, time.Since(start), err == nil)
	}
	return perms, err
}

func (r *HTTPResolver) resolve(
	ctx context.Context,
	userID, clientID string,
	scopes []string,
) ([]string, error) {
	reqBody := policyRequest{
		UserID:   userID,
		ClientID: clientID,
		Scopes:   scopes,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := r.retryClient.Post(
		ctx,
		r.config.PolicyAPIURL,
		httpretry.WithBody("application/json", bytes.NewReader(jsonData)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response", ErrPolicyInvalidResp)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		return nil, fmt.Errorf("%w: HTTP %d - %s", ErrPolicyInvalidResp, resp.StatusCode, bodyPreview)
	}

	var apiResp policyResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyInvalidResp, err)
	}
	if !apiResp.Success {
		log.Printf("[Policy] Lookup rejected for user=%s client=%s: %s", userID, clientID, apiResp.Message)
		return nil, fmt.Errorf("%w: %s", ErrPolicyInvalidResp, apiResp.Message)
	}

	return apiResp.Permissions, nil
}

// NewResolver builds the resolver selected by PolicyMode.
func NewResolver(cfg *config.Config, retryClient *httpretry.Client, m core.Recorder) (PermissionResolver, error) {
	switch cfg.PolicyMode {
	case config.PolicyModeHTTPAPI:
		if cfg.PolicyAPIURL == "" {
			return nil, errors.New("POLICY_MODE=http_api requires POLICY_API_URL")
		}
		return NewHTTPResolver(cfg, retryClient, m), nil
	case config.PolicyModeStatic, "":
		return NewStaticResolver(), nil
	default:
		return nil, fmt.Errorf("unsupported policy mode: %s", cfg.PolicyMode)
	}
}
