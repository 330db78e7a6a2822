// Package gateway hides partner-specific authentication and payload shape
// behind a uniform operation set consumed by the batch runner and the HTTP
// API.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/nexcred/backoffice/internal/model"
)

// Session carries the partner token obtained by Authenticate. Tokens are
// requested fresh per batch run and never cached across runs.
type Session struct {
	Token string
}

// OutcomeKind is the closed set of normalized balance-query outcomes.
type OutcomeKind int

const (
	// OutcomeSuccess carries a synchronous numeric balance.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeAccepted means the partner will deliver the result via webhook
	// later; nothing is written to the result store yet.
	OutcomeAccepted
	// OutcomeError is a terminal per-identifier failure (partner error,
	// transport error, 4xx/5xx). Never retried.
	OutcomeError
	// OutcomeUnrecognized is a 200 response whose body matches no known
	// shape, including the empty-body partner anomaly. Stored as an error
	// record with its own diagnostic message.
	OutcomeUnrecognized
)

// Outcome is the normalized result of one balance query.
type Outcome struct {
	Kind    OutcomeKind
	Balance *float64
	Message string
	Raw     []byte
}

// Gateway is the uniform per-provider adapter.
type Gateway interface {
	Provider() model.Provider
	// Authenticate validates credentials and obtains a partner session.
	// Missing credential fields produce a *ConfigError enumerating them.
	Authenticate(ctx context.Context, creds *model.PartnerCredentials) (Session, error)
	// QueryBalance performs one balance query. Transport and parse failures
	// are folded into the outcome; the batch must not abort on them.
	QueryBalance(ctx context.Context, session Session, identifier string) Outcome
}

// OfferGateway is implemented by providers that expose credit offers.
type OfferGateway interface {
	Gateway
	ListOffers(ctx context.Context, session Session, identifier string) ([]model.Offer, error)
}

// AuthorizationGateway is implemented by providers that require worker
// consent before balance access.
type AuthorizationGateway interface {
	Gateway
	GenerateAuthorizationLink(ctx context.Context, session Session, person model.PersonalData) (string, error)
	CheckAuthorizationStatus(ctx context.Context, session Session, identifier string) (bool, string, error)
}

// ConfigError reports incomplete partner credentials. It is job-level: the
// batch fails before any identifier is processed.
type ConfigError struct {
	Provider model.Provider
	Missing  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gateway: credenciais %s incompletas, campos faltando: %s",
		e.Provider, strings.Join(e.Missing, ", "))
}

// requireFields returns a *ConfigError naming every empty required field.
func requireFields(provider model.Provider, creds *model.PartnerCredentials, names ...string) error {
	var missing []string
	for _, name := range names {
		if creds.Field(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Provider: provider, Missing: missing}
	}
	return nil
}

// Registry resolves gateways by provider tag.
type Registry struct {
	gateways map[model.Provider]Gateway
}

// NewRegistry builds a registry from the given gateways.
func NewRegistry(gws ...Gateway) *Registry {
	m := make(map[model.Provider]Gateway, len(gws))
	for _, gw := range gws {
		m[gw.Provider()] = gw
	}
	return &Registry{gateways: m}
}

// Lookup returns the gateway for a provider.
func (r *Registry) Lookup(provider model.Provider) (Gateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, eris.Errorf("gateway: no adapter registered for provider %q", provider)
	}
	return gw, nil
}

// errorOutcome folds a transport/parse error into a terminal outcome.
func errorOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeError, Message: err.Error()}
}
