// Package v8 provides a client for the V8 payroll-credit partner API.
package v8

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://bff.v8sistema.com"

// Client performs FGTS balance operations against the V8 API.
type Client interface {
	// Authenticate exchanges client credentials for a bearer token.
	Authenticate(ctx context.Context, creds Credentials) (string, error)
	// QueryBalance requests the FGTS balance for one identifier. The partner
	// may answer synchronously, acknowledge for asynchronous computation, or
	// fail; the returned result distinguishes all shapes.
	QueryBalance(ctx context.Context, token, identifier string) (*BalanceResult, error)
}

// Credentials are the fields required by the V8 token endpoint.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience,omitempty"`
}

// tokenResponse is the body of POST /oauth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
}

// BalanceKind is the closed set of shapes a balance response can take.
type BalanceKind int

const (
	// BalanceUnrecognized marks a body that is not JSON, is an empty object,
	// or matches no known shape. The partner has been observed returning
	// 200 OK with an empty body while silently dropping the query, so this
	// is kept distinct from BalanceError.
	BalanceUnrecognized BalanceKind = iota
	// BalanceAvailable carries a synchronous numeric balance.
	BalanceAvailable
	// BalanceProcessing means the partner accepted the query and will
	// deliver the result via webhook later.
	BalanceProcessing
	// BalanceError carries a recognized partner error message.
	BalanceError
)

// BalanceResult is the normalized outcome of a balance query.
type BalanceResult struct {
	Kind    BalanceKind
	Balance float64
	Message string
	Raw     []byte
}

// balanceBody covers every field the partner is known to emit.
type balanceBody struct {
	DocumentNumber string   `json:"documentNumber"`
	Balance        *float64 `json:"balance"`
	Status         string   `json:"status"`
	Message        string   `json:"message"`
	Error          string   `json:"error"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a V8 API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", eris.Wrap(err, "v8: marshal credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "v8: create token request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "v8: send token request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "v8: read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("v8: token endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var tok tokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return "", eris.Wrap(err, "v8: unmarshal token response")
	}
	if tok.AccessToken == "" {
		return "", eris.Errorf("v8: token endpoint returned no access_token: %s", string(respBody))
	}

	return tok.AccessToken, nil
}

func (c *httpClient) QueryBalance(ctx context.Context, token, identifier string) (*BalanceResult, error) {
	payload, err := json.Marshal(map[string]string{"documentNumber": identifier})
	if err != nil {
		return nil, eris.Wrap(err, "v8: marshal balance request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fgts/balance", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "v8: create balance request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "v8: send balance request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "v8: read balance response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &BalanceResult{
			Kind:    BalanceError,
			Message: eris.Errorf("v8: balance endpoint returned %d: %s", resp.StatusCode, string(respBody)).Error(),
			Raw:     respBody,
		}, nil
	}

	return classifyBalance(respBody), nil
}

// classifyBalance decodes a 2xx balance body into the closed variant set.
func classifyBalance(body []byte) *BalanceResult {
	var parsed balanceBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &BalanceResult{
			Kind:    BalanceUnrecognized,
			Message: "v8: resposta não é JSON válido",
			Raw:     body,
		}
	}

	switch {
	case parsed.Error != "":
		return &BalanceResult{Kind: BalanceError, Message: parsed.Error, Raw: body}
	case parsed.Balance != nil:
		return &BalanceResult{Kind: BalanceAvailable, Balance: *parsed.Balance, Message: parsed.Message, Raw: body}
	case parsed.Status == "processing" || parsed.Status == "pending":
		return &BalanceResult{Kind: BalanceProcessing, Message: parsed.Message, Raw: body}
	default:
		return &BalanceResult{
			Kind:    BalanceUnrecognized,
			Message: "v8: resposta 200 sem saldo, status ou erro reconhecível",
			Raw:     body,
		}
	}
}
