package token

import "strings"

// OIDC scope constants recognized by the server.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeOfflineAccess = "offline_access"
)

// ParseScopes splits a space-delimited scope string, dropping empty entries.
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes renders a scope list as a space-delimited string.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSet is a membership set over scope names.
type ScopeSet map[string]struct{}

// NewScopeSet builds a set from a space-delimited scope string.
func NewScopeSet(scope string) ScopeSet {
	set := make(ScopeSet)
	for _, s := range ParseScopes(scope) {
		set[s] = struct{}{}
	}
	return set
}

// NewScopeSetFromList builds a set from a scope list.
func NewScopeSetFromList(scopes []string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

// Has reports whether the set contains scope.
func (s ScopeSet) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// ContainsAll reports whether every requested scope is in the set.
func (s ScopeSet) ContainsAll(requested []string) bool {
	for _, r := range requested {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// MissingFrom returns the requested scopes absent from the set.
func (s ScopeSet) MissingFrom(requested []string) []string {
	var missing []string
	for _, r := range requested {
		if !s.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}
