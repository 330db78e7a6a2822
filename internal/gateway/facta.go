package gateway

import (
	"context"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/pkg/facta"
)

// FactaGateway adapts the Facta bank marketplace client.
type FactaGateway struct {
	client facta.Client
}

// NewFacta creates the Facta gateway over the given client.
func NewFacta(client facta.Client) *FactaGateway {
	return &FactaGateway{client: client}
}

func (g *FactaGateway) Provider() model.Provider {
	return model.ProviderFacta
}

func (g *FactaGateway) Authenticate(ctx context.Context, creds *model.PartnerCredentials) (Session, error) {
	if err := requireFields(model.ProviderFacta, creds, "user", "password"); err != nil {
		return Session{}, err
	}

	token, err := g.client.Authenticate(ctx, facta.Credentials{
		User:     creds.Field("user"),
		Password: creds.Field("password"),
	})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token}, nil
}

func (g *FactaGateway) QueryBalance(ctx context.Context, session Session, identifier string) Outcome {
	result, err := g.client.QueryBalance(ctx, session.Token, identifier)
	if err != nil {
		return errorOutcome(err)
	}

	switch result.Kind {
	case facta.BalanceAvailable:
		balance := result.Balance
		return Outcome{Kind: OutcomeSuccess, Balance: &balance, Message: result.Message, Raw: result.Raw}
	case facta.BalanceProcessing:
		return Outcome{Kind: OutcomeAccepted, Message: result.Message, Raw: result.Raw}
	case facta.BalanceError:
		return Outcome{Kind: OutcomeError, Message: result.Message, Raw: result.Raw}
	default:
		return Outcome{Kind: OutcomeUnrecognized, Message: result.Message, Raw: result.Raw}
	}
}

func (g *FactaGateway) ListOffers(ctx context.Context, session Session, identifier string) ([]model.Offer, error) {
	offers, err := g.client.ListOffers(ctx, session.Token, identifier)
	if err != nil {
		return nil, err
	}

	normalized := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		normalized = append(normalized, model.Offer{
			Provider:     model.ProviderFacta,
			Code:         o.Code,
			Description:  o.Description,
			MaxValue:     o.MaxValue,
			Installments: o.Installments,
			MonthlyRate:  o.MonthlyRate,
		})
	}
	return normalized, nil
}

func (g *FactaGateway) GenerateAuthorizationLink(ctx context.Context, session Session, person model.PersonalData) (string, error) {
	return g.client.GenerateAuthorizationLink(ctx, session.Token, facta.PersonalData{
		CPF:       person.CPF,
		Name:      person.Name,
		BirthDate: person.BirthDate,
		Phone:     person.Phone,
	})
}

func (g *FactaGateway) CheckAuthorizationStatus(ctx context.Context, session Session, identifier string) (bool, string, error) {
	status, err := g.client.CheckAuthorizationStatus(ctx, session.Token, identifier)
	if err != nil {
		return false, "", err
	}
	return status.Authorized, status.Message, nil
}
