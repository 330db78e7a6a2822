// Package facta provides a client for the Facta bank marketplace API.
package facta

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://webservice.facta.com.br"

// Client performs credit operations against the Facta API.
type Client interface {
	// Authenticate exchanges Basic-auth credentials for an opaque token.
	Authenticate(ctx context.Context, creds Credentials) (string, error)
	// QueryBalance requests the FGTS balance for one identifier.
	QueryBalance(ctx context.Context, token, identifier string) (*BalanceResult, error)
	// ListOffers lists available CLT credit operations for one identifier.
	ListOffers(ctx context.Context, token, identifier string) ([]Offer, error)
	// GenerateAuthorizationLink creates a consent link for the worker to
	// authorize balance access at the partner.
	GenerateAuthorizationLink(ctx context.Context, token string, person PersonalData) (string, error)
	// CheckAuthorizationStatus reports whether the identifier has authorized
	// balance access.
	CheckAuthorizationStatus(ctx context.Context, token, identifier string) (*AuthorizationStatus, error)
}

// Credentials are the fields required by the Facta token endpoint.
type Credentials struct {
	User     string
	Password string
}

// BalanceKind is the closed set of shapes a balance response can take.
type BalanceKind int

const (
	BalanceUnrecognized BalanceKind = iota
	BalanceAvailable
	BalanceProcessing
	BalanceError
)

// BalanceResult is the normalized outcome of a balance query.
type BalanceResult struct {
	Kind    BalanceKind
	Balance float64
	Message string
	Raw     []byte
}

// Offer is one available credit operation.
type Offer struct {
	Code         string  `json:"codigo"`
	Description  string  `json:"descricao"`
	MaxValue     float64 `json:"valor_maximo"`
	Installments int     `json:"parcelas"`
	MonthlyRate  float64 `json:"taxa_mensal"`
}

// PersonalData identifies the worker for an authorization link.
type PersonalData struct {
	CPF       string `json:"cpf"`
	Name      string `json:"nome"`
	BirthDate string `json:"data_nascimento,omitempty"`
	Phone     string `json:"telefone,omitempty"`
}

// AuthorizationStatus reports the consent state for one identifier.
type AuthorizationStatus struct {
	Authorized bool   `json:"autorizado"`
	Message    string `json:"mensagem"`
}

// tokenResponse is the body of GET /gera-token.
type tokenResponse struct {
	Erro     bool   `json:"erro"`
	Mensagem string `json:"mensagem"`
	Token    string `json:"token"`
	Expira   string `json:"expira"`
}

// balanceBody covers every field the partner is known to emit.
type balanceBody struct {
	Erro     *bool    `json:"erro"`
	Mensagem string   `json:"mensagem"`
	Saldo    *float64 `json:"saldo"`
	Situacao string   `json:"situacao"`
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

// NewClient creates a Facta API client.
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
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gera-token", nil)
	if err != nil {
		return "", eris.Wrap(err, "facta: create token request")
	}
	basic := base64.StdEncoding.EncodeToString([]byte(creds.User + ":" + creds.Password))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "facta: send token request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "facta: read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("facta: token endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var tok tokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return "", eris.Wrap(err, "facta: unmarshal token response")
	}
	if tok.Erro || tok.Token == "" {
		return "", eris.Errorf("facta: token rejected: %s", tok.Mensagem)
	}

	return tok.Token, nil
}

func (c *httpClient) QueryBalance(ctx context.Context, token, identifier string) (*BalanceResult, error) {
	endpoint := c.baseURL + "/fgts/saldo?cpf=" + url.QueryEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "facta: create balance request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "facta: send balance request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "facta: read balance response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &BalanceResult{
			Kind:    BalanceError,
			Message: eris.Errorf("facta: balance endpoint returned %d: %s", resp.StatusCode, string(respBody)).Error(),
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
			Message: "facta: resposta não é JSON válido",
			Raw:     body,
		}
	}

	switch {
	case parsed.Erro != nil && *parsed.Erro:
		return &BalanceResult{Kind: BalanceError, Message: parsed.Mensagem, Raw: body}
	case parsed.Saldo != nil:
		return &BalanceResult{Kind: BalanceAvailable, Balance: *parsed.Saldo, Message: parsed.Mensagem, Raw: body}
	case strings.EqualFold(parsed.Situacao, "processando"):
		return &BalanceResult{Kind: BalanceProcessing, Message: parsed.Mensagem, Raw: body}
	default:
		return &BalanceResult{
			Kind:    BalanceUnrecognized,
			Message: "facta: resposta 200 sem saldo, situação ou erro reconhecível",
			Raw:     body,
		}
	}
}

func (c *httpClient) ListOffers(ctx context.Context, token, identifier string) ([]Offer, error) {
	endpoint := c.baseURL + "/proposta/operacoes-disponiveis?cpf=" + url.QueryEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "facta: create offers request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "facta: send offers request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "facta: read offers response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("facta: offers endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Erro      bool    `json:"erro"`
		Mensagem  string  `json:"mensagem"`
		Operacoes []Offer `json:"operacoes"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "facta: unmarshal offers response")
	}
	if result.Erro {
		return nil, eris.Errorf("facta: offers rejected: %s", result.Mensagem)
	}

	return result.Operacoes, nil
}

func (c *httpClient) GenerateAuthorizationLink(ctx context.Context, token string, person PersonalData) (string, error) {
	body, err := json.Marshal(person)
	if err != nil {
		return "", eris.Wrap(err, "facta: marshal authorization request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fgts/link-autorizacao", strings.NewReader(string(body)))
	if err != nil {
		return "", eris.Wrap(err, "facta: create authorization request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "facta: send authorization request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "facta: read authorization response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("facta: authorization endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Erro     bool   `json:"erro"`
		Mensagem string `json:"mensagem"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", eris.Wrap(err, "facta: unmarshal authorization response")
	}
	if result.Erro || result.URL == "" {
		return "", eris.Errorf("facta: authorization rejected: %s", result.Mensagem)
	}

	return result.URL, nil
}

func (c *httpClient) CheckAuthorizationStatus(ctx context.Context, token, identifier string) (*AuthorizationStatus, error) {
	endpoint := c.baseURL + "/fgts/status-autorizacao?cpf=" + url.QueryEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "facta: create status request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "facta: send status request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "facta: read status response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("facta: status endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var status AuthorizationStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, eris.Wrap(err, "facta: unmarshal status response")
	}

	return &status, nil
}
