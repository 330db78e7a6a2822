package gateway

import (
	"context"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/pkg/c6bank"
)

// C6Gateway adapts the C6 Bank benefit-card client. C6 has no FGTS balance
// endpoint; a balance query maps to a benefit-card simulation and the
// available limit is reported as the numeric result.
type C6Gateway struct {
	client c6bank.Client
}

// NewC6 creates the C6 gateway over the given client.
func NewC6(client c6bank.Client) *C6Gateway {
	return &C6Gateway{client: client}
}

func (g *C6Gateway) Provider() model.Provider {
	return model.ProviderC6
}

func (g *C6Gateway) Authenticate(ctx context.Context, creds *model.PartnerCredentials) (Session, error) {
	if err := requireFields(model.ProviderC6, creds, "client_id", "client_secret"); err != nil {
		return Session{}, err
	}

	token, err := g.client.Authenticate(ctx, c6bank.Credentials{
		ClientID:     creds.Field("client_id"),
		ClientSecret: creds.Field("client_secret"),
	})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token}, nil
}

func (g *C6Gateway) QueryBalance(ctx context.Context, session Session, identifier string) Outcome {
	sim, err := g.client.SimulateCard(ctx, session.Token, identifier)
	if err != nil {
		return errorOutcome(err)
	}

	limit := sim.Limit
	return Outcome{Kind: OutcomeSuccess, Balance: &limit, Message: sim.Message}
}

func (g *C6Gateway) ListOffers(ctx context.Context, session Session, identifier string) ([]model.Offer, error) {
	offers, err := g.client.ListOffers(ctx, session.Token, identifier)
	if err != nil {
		return nil, err
	}

	normalized := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		normalized = append(normalized, model.Offer{
			Provider:    model.ProviderC6,
			Code:        o.Product,
			Description: o.Description,
			MaxValue:    o.Limit,
			MonthlyRate: o.MonthlyRate,
		})
	}
	return normalized, nil
}
