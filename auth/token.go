// Package auth supplies bearer tokens for the cloud API client. Tokens are
// obtained from the sign-in endpoint and cached until shortly before their
// expiry claim.
// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials identifies the signed-in engineer.
type Credentials struct {
	Username string
	Password string
}

// TokenProvider exchanges credentials for a JWT and caches it. Its Token
// method satisfies the token-func contract of the cloudapi client.
type TokenProvider struct {
	BaseURL string
	HTTP    *http.Client
	Creds   Credentials

	// Leeway is subtracted from the token expiry when deciding whether the
	// cached token is still usable. Defaults to 30s.
	Leeway time.Duration

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time // test hook
}

// NewTokenProvider creates a provider for the given sign-in endpoint.
func NewTokenProvider(baseURL string, creds Credentials) *TokenProvider {
	return &TokenProvider{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Creds:   creds,
		Leeway:  30 * time.Second,
		now:     time.Now,
	}
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signinResponse struct {
	Token string `json:"token"`
}

// Token returns a cached token when it is still valid, signing in again
// otherwise.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && (p.expiry.IsZero() || p.timeNow().Add(p.Leeway).Before(p.expiry)) {
		return p.token, nil
	}

	token, err := p.signin(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expiry = tokenExpiry(token)
	return token, nil
}

// Invalidate drops the cached token, forcing a fresh sign-in on next use.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiry = time.Time{}
}

func (p *TokenProvider) timeNow() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *TokenProvider) signin(ctx context.Context) (string, error) {
	body, err := json.Marshal(signinRequest{Username: p.Creds.Username, Password: p.Creds.Password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal signin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/auth/signin", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send signin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("signin returned status %d: %s", resp.StatusCode, string(b))
	}

	var signin signinResponse
	if err := json.NewDecoder(resp.Body).Decode(&signin); err != nil {
		return "", fmt.Errorf("failed to decode signin response: %w", err)
	}
	if signin.Token == "" {
		return "", fmt.Errorf("signin response contained no token")
	}
	return signin.Token, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client is not the token's verifier, it only needs to know when to renew.
// A token without a readable expiry is treated as non-expiring (zero time)
// and replaced only when the server rejects it.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
