package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"sync"
	"time"
)

// OAuth2 grant types.
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
)

// expirySkew treats tokens as expired slightly early to absorb clock drift.
const expirySkew = 30 * time.Second

// OAuth2Credentials obtain a bearer token from a token endpoint before the
// request is sent.
type OAuth2Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	GrantType    string
	Username     string
	Password     string
}

func (c *OAuth2Credentials) key() string {
	return strings.Join([]string{c.GrantType, c.TokenURL, c.ClientID, c.Username, strings.Join(c.Scopes, ",")}, "|")
}

type oauth2Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	expiresAt   time.Time
}

func (t *oauth2Token) expired(now time.Time) bool {
	if t.expiresAt.IsZero() {
		return false
	}
	return now.Add(expirySkew).After(t.expiresAt)
}

// tokenCache is shared by every request of a client.
type tokenCache struct {
	mu     sync.Mutex
	tokens map[string]*oauth2Token
}

func newTokenCache() *tokenCache {
	return &tokenCache{tokens: make(map[string]*oauth2Token)}
}

func (c *tokenCache) get(key string) *oauth2Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tokens[key]
	if t == nil || t.expired(time.Now()) {
		return nil
	}
	return t
}

func (c *tokenCache) set(key string, t *oauth2Token) {
	c.mu.Lock()
	c.tokens[key] = t
	c.mu.Unlock()
}

func decodeOAuth2(raw any) (*OAuth2Credentials, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("options.auth.oauth2 must be an object, got %T", raw)
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	creds := &OAuth2Credentials{
		TokenURL:     str("tokenUrl"),
		ClientID:     str("clientId"),
		ClientSecret: str("clientSecret"),
		GrantType:    str("grantType"),
		Username:     str("username"),
		Password:     str("password"),
	}
	switch scopes := m["scopes"].(type) {
	case string:
		creds.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
	case []any:
		for _, s := range scopes {
			creds.Scopes = append(creds.Scopes, fmt.Sprint(s))
		}
	}

	if creds.TokenURL == "" {
		return nil, fmt.Errorf("options.auth.oauth2.tokenUrl is required")
	}
	if creds.GrantType == "" {
		creds.GrantType = GrantClientCredentials
	}
	switch creds.GrantType {
	case GrantClientCredentials:
	case GrantPassword:
		if creds.Username == "" {
			return nil, fmt.Errorf("options.auth.oauth2: password grant needs a username")
		}
	default:
		return nil, fmt.Errorf("options.auth.oauth2: unsupported grant type %q", creds.GrantType)
	}
	return creds, nil
}

// oauth2Token returns a cached token or requests a new one.
func (c *Client) oauth2Token(ctx context.Context, creds *OAuth2Credentials) (string, error) {
	key := creds.key()
	if t := c.tokens.get(key); t != nil {
		return t.AccessToken, nil
	}

	form := neturl.Values{}
	form.Set("grant_type", creds.GrantType)
	if creds.GrantType == GrantPassword {
		form.Set("username", creds.Username)
		form.Set("password", creds.Password)
	}
	if len(creds.Scopes) > 0 {
		form.Set("scope", strings.Join(creds.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("oauth2 token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if creds.ClientID != "" {
		req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth2 token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("oauth2 token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("oauth2 token request rejected: %s %s", e.Error, e.Description)
		}
		return "", fmt.Errorf("oauth2 token request rejected with status %d", resp.StatusCode)
	}

	var t oauth2Token
	if err := json.Unmarshal(body, &t); err != nil {
		return "", fmt.Errorf("oauth2 token response: %w", err)
	}
	if t.AccessToken == "" {
		return "", fmt.Errorf("oauth2 token response has no access_token")
	}
	if t.ExpiresIn > 0 {
		t.expiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	c.tokens.set(key, &t)
	return t.AccessToken, nil
}
