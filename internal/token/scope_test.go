package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScopes(t *testing.T) {
	assert.Equal(t, []string{"openid", "profile"}, ParseScopes("openid profile"))
	assert.Equal(t, []string{"openid"}, ParseScopes("  openid  "))
	assert.Empty(t, ParseScopes(""))
	assert.Empty(t, ParseScopes("   "))
}

func TestJoinScopes(t *testing.T) {
	assert.Equal(t, "openid profile", JoinScopes([]string{"openid", "profile"}))
	assert.Equal(t, "", JoinScopes(nil))
}

func TestScopeSet(t *testing.T) {
	set := NewScopeSet("openid profile email")

	assert.True(t, set.Has("openid"))
	assert.True(t, set.Has("email"))
	assert.False(t, set.Has("offline_access"))
	assert.False(t, set.Has(""))
}

func TestScopeSetContainsAll(t *testing.T) {
	set := NewScopeSet("openid profile email")

	assert.True(t, set.ContainsAll([]string{"openid"}))
	assert.True(t, set.ContainsAll([]string{"openid", "email"}))
	assert.True(t, set.ContainsAll(nil))
	assert.False(t, set.ContainsAll([]string{"openid", "admin"}))
}

func TestScopeSetMissingFrom(t *testing.T) {
	set := NewScopeSetFromList([]string{"read"})

	assert.Nil(t, set.MissingFrom([]string{"read"}))
	assert.Equal(t, []string{"write", "admin"}, set.MissingFrom([]string{"read", "write", "admin"}))
}
