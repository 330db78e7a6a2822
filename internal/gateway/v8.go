package gateway

import (
	"context"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/pkg/v8"
)

// V8Gateway adapts the V8 payroll-credit client.
type V8Gateway struct {
	client v8.Client
}

// NewV8 creates the V8 gateway over the given client.
func NewV8(client v8.Client) *V8Gateway {
	return &V8Gateway{client: client}
}

func (g *V8Gateway) Provider() model.Provider {
	return model.ProviderV8
}

func (g *V8Gateway) Authenticate(ctx context.Context, creds *model.PartnerCredentials) (Session, error) {
	if err := requireFields(model.ProviderV8, creds, "client_id", "client_secret"); err != nil {
		return Session{}, err
	}

	token, err := g.client.Authenticate(ctx, v8.Credentials{
		ClientID:     creds.Field("client_id"),
		ClientSecret: creds.Field("client_secret"),
		Audience:     creds.Field("audience"),
	})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token}, nil
}

func (g *V8Gateway) QueryBalance(ctx context.Context, session Session, identifier string) Outcome {
	result, err := g.client.QueryBalance(ctx, session.Token, identifier)
	if err != nil {
		return errorOutcome(err)
	}

	switch result.Kind {
	case v8.BalanceAvailable:
		balance := result.Balance
		return Outcome{Kind: OutcomeSuccess, Balance: &balance, Message: result.Message, Raw: result.Raw}
	case v8.BalanceProcessing:
		return Outcome{Kind: OutcomeAccepted, Message: result.Message, Raw: result.Raw}
	case v8.BalanceError:
		return Outcome{Kind: OutcomeError, Message: result.Message, Raw: result.Raw}
	default:
		return Outcome{Kind: OutcomeUnrecognized, Message: result.Message, Raw: result.Raw}
	}
}
