package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, issued *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		user, pass, ok := r.BasicAuth()
		if !ok || user != "app" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad client"}`))
			return
		}
		if r.Form.Get("grant_type") == GrantPassword {
			assert.Equal(t, "keeper", r.Form.Get("username"))
			assert.Equal(t, "pw", r.Form.Get("password"))
		}
		atomic.AddInt32(issued, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-` + r.Form.Get("scope") + `","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_OAuth2(t *testing.T) {
	var issued int32
	tokens := tokenServer(t, &issued)

	var seen []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	options := map[string]any{
		"auth": map[string]any{"oauth2": map[string]any{
			"tokenUrl":     tokens.URL,
			"clientId":     "app",
			"clientSecret": "s3cret",
			"scopes":       []any{"pets:read"},
		}},
	}

	client := NewClient()
	for i := 0; i < 2; i++ {
		out := client.Perform(context.Background(), "GET", api.URL, options)
		require.NoError(t, out.Err)
		assert.Equal(t, 204, out.StatusCode())
	}
	assert.Equal(t, []string{"Bearer tok-pets:read", "Bearer tok-pets:read"}, seen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&issued))
}

func TestClient_OAuth2PasswordGrant(t *testing.T) {
	var issued int32
	tokens := tokenServer(t, &issued)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-", r.Header.Get("Authorization"))
	}))
	defer api.Close()

	out := NewClient().Perform(context.Background(), "GET", api.URL, map[string]any{
		"auth": map[string]any{"oauth2": map[string]any{
			"tokenUrl":     tokens.URL,
			"grantType":    "password",
			"clientId":     "app",
			"clientSecret": "s3cret",
			"username":     "keeper",
			"password":     "pw",
		}},
	})
	require.NoError(t, out.Err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&issued))
}

func TestClient_OAuth2Rejected(t *testing.T) {
	var issued int32
	tokens := tokenServer(t, &issued)
	var called int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
	}))
	defer api.Close()

	out := NewClient().Perform(context.Background(), "GET", api.URL, map[string]any{
		"auth": map[string]any{"oauth2": map[string]any{
			"tokenUrl":     tokens.URL,
			"clientId":     "app",
			"clientSecret": "wrong",
		}},
	})
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "invalid_client")
	assert.Zero(t, atomic.LoadInt32(&called))
}

func TestDecodeOAuth2(t *testing.T) {
	creds, err := decodeOAuth2(map[string]any{"tokenUrl": "http://auth/token", "scopes": "a, b"})
	require.NoError(t, err)
	assert.Equal(t, GrantClientCredentials, creds.GrantType)
	assert.Equal(t, []string{"a", "b"}, creds.Scopes)

	tests := []struct {
		name string
		raw  any
	}{
		{name: "not an object", raw: "token"},
		{name: "missing token url", raw: map[string]any{"clientId": "x"}},
		{name: "password without username", raw: map[string]any{"tokenUrl": "http://a", "grantType": "password"}},
		{name: "unknown grant", raw: map[string]any{"tokenUrl": "http://a", "grantType": "implicit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeOAuth2(tt.raw)
			assert.Error(t, err)
		})
	}
}
