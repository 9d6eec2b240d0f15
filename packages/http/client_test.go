package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PerformJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v2/pet", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "doggie", payload["name"])

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "abc")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id": 1017, "name": "doggie"}`))
	}))
	defer server.Close()

	client := NewClient()
	out := client.Perform(context.Background(), "post", server.URL+"/v2/pet", map[string]any{
		"body": map[string]any{"name": "doggie"},
		"json": true,
	})

	require.NoError(t, out.Err)
	assert.Equal(t, "POST", out.Method)
	assert.Equal(t, 200, out.StatusCode())
	assert.Equal(t, map[string]any{"id": float64(1017), "name": "doggie"}, out.Body)
	assert.Equal(t, "abc", out.Response.LowerHeaders()["x-request-id"])
	assert.Greater(t, out.Elapsed, time.Duration(0))
}

func TestClient_PerformTextAndEmptyBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/text":
			_, _ = w.Write([]byte("pong"))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := NewClient()

	out := client.Perform(context.Background(), "GET", server.URL+"/text", nil)
	require.NoError(t, out.Err)
	assert.Equal(t, "pong", out.Body)

	out = client.Perform(context.Background(), "DELETE", server.URL+"/empty", nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 204, out.StatusCode())
	assert.Nil(t, out.Body)
}

func TestClient_PerformRequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/pet/1017", r.URL.Path)
		assert.Equal(t, "available", r.URL.Query().Get("status"))
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
		assert.Equal(t, "ddtspec", r.Header.Get("X-Client"))
		assert.Equal(t, "override", r.Header.Get("X-Default"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithHeaders(map[string]string{"X-Default": "base"}))
	out := client.Perform(context.Background(), "GET", server.URL+"/v2/pet/{petId}", map[string]any{
		"parameters": map[string]any{"petId": float64(1017)},
		"qs":         map[string]any{"status": "available", "tag": []any{"a", "b"}},
		"headers":    map[string]any{"X-Client": "ddtspec", "X-Default": "override"},
		"auth":       map[string]any{"bearer": "tok"},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, 200, out.StatusCode())
}

func TestClient_PerformForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "sold", r.PostForm.Get("status"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := NewClient().Perform(context.Background(), "POST", server.URL, map[string]any{
		"form": map[string]any{"status": "sold"},
		"auth": map[string]any{"basic": map[string]any{"username": "admin", "password": "secret"}},
	})
	require.NoError(t, out.Err)
}

func TestClient_PerformRawStringBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<pet/>", string(data))
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
	}))
	defer server.Close()

	out := NewClient().Perform(context.Background(), "PUT", server.URL, map[string]any{
		"body":    "<pet/>",
		"headers": map[string]any{"Content-Type": "application/xml"},
	})
	require.NoError(t, out.Err)
}

func TestClient_PerformNeverReturnsNil(t *testing.T) {
	client := NewClient(WithTimeout(time.Second))

	tests := []struct {
		name    string
		url     string
		options map[string]any
		errMsg  string
	}{
		{name: "bad scheme", url: "ftp://example.com", errMsg: "unsupported URL scheme"},
		{name: "bad options", url: "http://example.com", options: map[string]any{"headers": "nope"}, errMsg: "options.headers"},
		{name: "refused", url: "http://127.0.0.1:1/", errMsg: "connect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := client.Perform(context.Background(), "GET", tt.url, tt.options)
			require.NotNil(t, out)
			require.Error(t, out.Err)
			assert.Contains(t, out.Err.Error(), tt.errMsg)
			assert.Nil(t, out.Response)
			assert.Equal(t, 0, out.StatusCode())
		})
	}
}

func TestClient_WithTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := NewClient(WithTimeout(50*time.Millisecond)).Perform(context.Background(), "GET", server.URL, nil)
	assert.Error(t, out.Err)

	out = NewClient().Perform(context.Background(), "GET", server.URL, map[string]any{"timeout": 50})
	assert.Error(t, out.Err)
}

func TestClient_WithRateLimit(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client := NewClient(WithRateLimit(10))
	start := time.Now()
	for i := 0; i < 12; i++ {
		require.NoError(t, client.Perform(context.Background(), "GET", server.URL, nil).Err)
	}
	assert.Equal(t, int32(12), atomic.LoadInt32(&hits))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewClient(WithRateLimit(0.01))
	_ = slow.Perform(context.Background(), "GET", server.URL, nil)
	out := slow.Perform(ctx, "GET", server.URL, nil)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "rate limiter")
}

func TestClient_DigestAuth(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") {
			w.Header().Set("WWW-Authenticate", `Digest realm="pets", nonce="n0nce", qop="auth", opaque="op"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Contains(t, auth, `username="keeper"`)
		assert.Contains(t, auth, `uri="/secure?x=1"`)
		assert.Contains(t, auth, `opaque="op"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := NewClient().Perform(context.Background(), "GET", server.URL+"/secure?x=1", map[string]any{
		"auth": map[string]any{"digest": map[string]any{"username": "keeper", "password": "pw"}},
	})
	require.NoError(t, out.Err)
	assert.Equal(t, 200, out.StatusCode())
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_FollowRedirects(t *testing.T) {
	redirectCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			_, _ = w.Write([]byte(`final`))
			return
		}
		redirectCount++
		http.Redirect(w, r, "/final", http.StatusFound)
	}))
	defer server.Close()

	out := NewClient(WithFollowRedirects(true)).Perform(context.Background(), "GET", server.URL+"/redirect", nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 200, out.StatusCode())
	assert.Equal(t, "final", out.Body)
	assert.Equal(t, 1, redirectCount)

	out = NewClient(WithFollowRedirects(false)).Perform(context.Background(), "GET", server.URL+"/redirect", nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 302, out.StatusCode())
}

func TestClient_MaxRedirects(t *testing.T) {
	redirectCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		redirectCount++
		http.Redirect(w, r, "/redirect", http.StatusFound)
	}))
	defer server.Close()

	out := NewClient(WithMaxRedirects(3)).Perform(context.Background(), "GET", server.URL+"/redirect", nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 302, out.StatusCode())
	assert.LessOrEqual(t, redirectCount, 4)
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string
	}{
		{name: "valid http URL", url: "http://example.com/path"},
		{name: "valid https URL", url: "https://example.com/path"},
		{name: "invalid scheme", url: "ftp://example.com", wantErr: true, errMsg: "unsupported URL scheme"},
		{name: "missing scheme", url: "example.com/path", wantErr: true, errMsg: "unsupported URL scheme"},
		{name: "missing host", url: "http:///path", wantErr: true, errMsg: "URL must have a host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOutcome_Value(t *testing.T) {
	out := &Outcome{
		URL:     "http://pets/1",
		Elapsed: 12 * time.Millisecond,
		Body:    map[string]any{"id": float64(1)},
		Response: &Response{
			StatusCode: 200,
			Headers:    map[string]string{"Content-Type": "application/json"},
		},
	}
	v := out.Value()
	assert.Equal(t, float64(200), v["status"])
	assert.Equal(t, float64(200), v["statusCode"])
	assert.Equal(t, float64(12), v["elapsed"])
	assert.Equal(t, "http://pets/1", v["url"])
	assert.Equal(t, map[string]any{"content-type": "application/json"}, v["headers"])

	failed := (&Outcome{URL: "http://pets/1"}).Value()
	assert.NotContains(t, failed, "status")
}
