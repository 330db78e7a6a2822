// Package c6bank provides a client for the C6 Bank digital-bank API.
package c6bank

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://baas-api.c6bank.info"

// Client performs INSS benefit-card operations against the C6 Bank API.
type Client interface {
	// Authenticate exchanges client credentials for a bearer token via the
	// OAuth2 form endpoint.
	Authenticate(ctx context.Context, creds Credentials) (string, error)
	// ListOffers lists available benefit-card offers for one identifier.
	ListOffers(ctx context.Context, token, identifier string) ([]Offer, error)
	// SimulateCard simulates a benefit-card issuance, returning the
	// available limit and consignable margin.
	SimulateCard(ctx context.Context, token, identifier string) (*CardSimulation, error)
}

// Credentials are the fields required by the C6 token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Offer is one available benefit-card offer.
type Offer struct {
	Product     string  `json:"product"`
	Description string  `json:"description"`
	Limit       float64 `json:"limit"`
	MonthlyRate float64 `json:"monthly_rate"`
}

// CardSimulation is the outcome of a benefit-card simulation.
type CardSimulation struct {
	Document string  `json:"document"`
	Limit    float64 `json:"limit"`
	Margin   float64 `json:"margin"`
	Message  string  `json:"message"`
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

// NewClient creates a C6 Bank API client.
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
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "c6bank: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "c6bank: send token request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "c6bank: read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("c6bank: token endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return "", eris.Wrap(err, "c6bank: unmarshal token response")
	}
	if tok.AccessToken == "" {
		return "", eris.Errorf("c6bank: token endpoint returned no access_token: %s", string(respBody))
	}

	return tok.AccessToken, nil
}

func (c *httpClient) ListOffers(ctx context.Context, token, identifier string) ([]Offer, error) {
	endpoint := c.baseURL + "/bank/benefit-card/offers?document=" + url.QueryEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "c6bank: create offers request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "c6bank: send offers request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "c6bank: read offers response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("c6bank: offers endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Offers []Offer `json:"offers"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "c6bank: unmarshal offers response")
	}

	return result.Offers, nil
}

func (c *httpClient) SimulateCard(ctx context.Context, token, identifier string) (*CardSimulation, error) {
	payload, err := json.Marshal(map[string]string{"document": identifier})
	if err != nil {
		return nil, eris.Wrap(err, "c6bank: marshal simulation request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bank/benefit-card/simulation", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "c6bank: create simulation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "c6bank: send simulation request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "c6bank: read simulation response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("c6bank: simulation endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var sim CardSimulation
	if err := json.Unmarshal(respBody, &sim); err != nil {
		return nil, eris.Wrap(err, "c6bank: unmarshal simulation response")
	}

	return &sim, nil
}
