package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSafeRedirectTarget(t *testing.T) {
	t.Run("Accepts absolute http and https URIs", func(t *testing.T) {
		assert.True(t, IsSafeRedirectTarget("https://client.example.com/callback"))
		assert.True(t, IsSafeRedirectTarget("http://localhost:3000/cb?foo=bar"))
	})

	t.Run("Rejects script schemes", func(t *testing.T) {
		assert.False(t, IsSafeRedirectTarget("javascript:alert(1)"))
		assert.False(t, IsSafeRedirectTarget("data:text/html,<script>alert(1)</script>"))
		assert.False(t, IsSafeRedirectTarget("vbscript:msgbox(1)"))
	})

	t.Run("Rejects header injection", func(t *testing.T) {
		assert.False(t, IsSafeRedirectTarget("https://client.example.com/cb\r\nSet-Cookie: x=1"))
		assert.False(t, IsSafeRedirectTarget("https://client.example.com/cb\nX-Injected: 1"))
	})

	t.Run("Rejects backslash tricks", func(t *testing.T) {
		assert.False(t, IsSafeRedirectTarget(`https:/\evil.example.com`))
		assert.False(t, IsSafeRedirectTarget(`/\evil.example.com`))
	})

	t.Run("Rejects empty and hostless values", func(t *testing.T) {
		assert.False(t, IsSafeRedirectTarget(""))
		assert.False(t, IsSafeRedirectTarget("/relative/path"))
		assert.False(t, IsSafeRedirectTarget("https://"))
	})
}
