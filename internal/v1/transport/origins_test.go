package transport

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedOrigins_ParsesList(t *testing.T) {
	allowed := AllowedOrigins("https://chat.example.com, http://localhost:3000")

	assert.Equal(t, 2, allowed.Len())
	assert.True(t, allowed.Has("https://chat.example.com"))
	assert.True(t, allowed.Has("http://localhost:3000"))
}

func TestAllowedOrigins_NormalizesEntries(t *testing.T) {
	allowed := AllowedOrigins("HTTPS://Chat.Example.COM/")

	// Scheme and host are case-insensitive; the trailing slash is not
	// part of an origin.
	assert.True(t, allowed.Has("https://chat.example.com"))
}

func TestAllowedOrigins_SkipsMalformedEntries(t *testing.T) {
	allowed := AllowedOrigins("https://good.example.com,not-a-url,,")

	assert.Equal(t, 1, allowed.Len())
	assert.True(t, allowed.Has("https://good.example.com"))
}

func TestAllowedOrigins_EmptyFallsBackToDefaults(t *testing.T) {
	allowed := AllowedOrigins("")

	require.NotZero(t, allowed.Len())
	assert.True(t, allowed.Has("http://localhost:3000"))
	assert.True(t, allowed.Has("http://localhost:8080"))
}

func TestValidateOrigin_Strict(t *testing.T) {
	allowed := AllowedOrigins("https://trusted.com,http://localhost:3000")

	tests := []struct {
		name        string
		origin      string
		expectError bool
	}{
		{
			name:        "Allowed Origin",
			origin:      "https://trusted.com",
			expectError: false,
		},
		{
			name:        "Allowed Localhost",
			origin:      "http://localhost:3000",
			expectError: false,
		},
		{
			name:        "Host Case Insensitive",
			origin:      "https://TRUSTED.com",
			expectError: false,
		},
		{
			name:        "Subdomain (Should Fail Strict Match)",
			origin:      "https://evil.trusted.com",
			expectError: true,
		},
		{
			name:        "Prefix Match (Should Fail)",
			origin:      "https://trusted.com.evil.com",
			expectError: true,
		},
		{
			name:        "Scheme Downgrade (Should Fail)",
			origin:      "http://trusted.com",
			expectError: true,
		},
		{
			name:        "Null Origin (Should Fail)",
			origin:      "null",
			expectError: true,
		},
		{
			name:        "Evil Origin",
			origin:      "http://evil.com",
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Origin", tc.origin)

			err := validateOrigin(req, allowed)

			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOrigin_MissingHeaderAllowsNonBrowserClients(t *testing.T) {
	allowed := AllowedOrigins("https://trusted.com")

	req := httptest.NewRequest("GET", "/", nil)

	// CLI tools and test harnesses send no Origin header; browsers
	// always do, so this cannot be used to bypass the check from a page.
	assert.NoError(t, validateOrigin(req, allowed))
}
