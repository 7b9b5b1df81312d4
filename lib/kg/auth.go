// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ontograph/ontofs/lib/clock"
)

// refreshMargin is how long before expiry a token is considered
// invalid. Refreshing early keeps a token from expiring mid-request.
const refreshMargin = 60 * time.Second

// Session obtains and refreshes a bearer credential from the service
// via the client-credentials grant. Concurrent refreshes coalesce into
// a single exchange; all callers receive its result.
//
// Session does not retry a failed exchange. Retry policy belongs to
// the caller: the failure propagates as an I/O failure to whichever
// filesystem operation needed the token.
type Session struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	clock        clock.Clock

	flight singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewSession creates a Session against the given service base URL.
func NewSession(baseURL, clientID, clientSecret string, httpClient *http.Client, clk clock.Clock) *Session {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Session{
		httpClient:   httpClient,
		tokenURL:     strings.TrimSuffix(baseURL, "/") + "/v1/auth/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		clock:        clk,
	}
}

// Token returns a cached, still-valid credential, or performs exactly
// one token exchange if none is valid. N concurrent callers requiring
// a refresh trigger exactly one exchange.
func (s *Session) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	result, err, _ := s.flight.Do("token", func() (any, error) {
		// A caller that lost the race may arrive after the winner
		// already stored a fresh token.
		if token, ok := s.cached(); ok {
			return token, nil
		}
		return s.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// cached returns the stored token if it is valid past the refresh
// margin.
func (s *Session) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", false
	}
	if !s.clock.Now().Before(s.expiry.Add(-refreshMargin)) {
		return "", false
	}
	return s.token, true
}

// tokenResponse is the wire shape of a successful exchange.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *Session) exchange(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return "", fmt.Errorf("token exchange: %s: %s",
			response.Status, strings.TrimSpace(string(body)))
	}

	var parsed tokenResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response has empty access token")
	}

	s.mu.Lock()
	s.token = parsed.AccessToken
	s.expiry = s.clock.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	s.mu.Unlock()

	return parsed.AccessToken, nil
}
