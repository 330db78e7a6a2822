// Package webhook ingests asynchronous partner callbacks and correlates them
// with pending balance queries.
package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/store"
)

// ErrBadPayload marks a callback body that cannot be parsed or carries no
// identifier. Handlers translate it to a 400.
var ErrBadPayload = eris.New("webhook: payload inválido")

// Receiver correlates partner callbacks into the result store. Processing is
// idempotent: redelivery of the same callback overwrites the same record.
type Receiver struct {
	store store.Store
}

// NewReceiver creates a Receiver over the given store.
func NewReceiver(st store.Store) *Receiver {
	return &Receiver{store: st}
}

// identifierFields maps each provider to the document field its callbacks
// use. Anything else in the body is kept only as raw payload.
var identifierFields = map[model.Provider]string{
	model.ProviderV8:    "documentNumber",
	model.ProviderFacta: "cpf",
	model.ProviderC6:    "document",
}

// payload is the superset of callback fields we interpret across providers.
// Partner-issued correlation ids are deliberately not used for keying.
type payload struct {
	DocumentNumber string   `json:"documentNumber"`
	CPF            string   `json:"cpf"`
	Document       string   `json:"document"`
	Balance        *float64 `json:"balance"`
	Saldo          *float64 `json:"saldo"`
	Limit          *float64 `json:"limit"`
	Error          string   `json:"error"`
	Erro           bool     `json:"erro"`
	Message        string   `json:"message"`
	Mensagem       string   `json:"mensagem"`
	Status         string   `json:"status"`
}

func (p payload) identifier(provider model.Provider) string {
	switch provider {
	case model.ProviderV8:
		return p.DocumentNumber
	case model.ProviderFacta:
		return p.CPF
	case model.ProviderC6:
		return p.Document
	}
	return ""
}

func (p payload) balance() *float64 {
	switch {
	case p.Balance != nil:
		return p.Balance
	case p.Saldo != nil:
		return p.Saldo
	case p.Limit != nil:
		return p.Limit
	}
	return nil
}

func (p payload) errorMessage() string {
	if p.Error != "" {
		return p.Error
	}
	if p.Erro {
		if p.Mensagem != "" {
			return p.Mensagem
		}
		return "erro informado pelo parceiro"
	}
	return ""
}

func (p payload) message() string {
	if p.Message != "" {
		return p.Message
	}
	return p.Mensagem
}

// Process parses one callback body and upserts the corresponding result
// record. A callback for an identifier that was never queried is still
// stored; correlation is by key, not by pending state.
func (r *Receiver) Process(ctx context.Context, provider model.Provider, body []byte) (*model.ResultRecord, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(ErrBadPayload, err.Error())
	}

	identifier := model.DigitsOnly(p.identifier(provider))
	if identifier == "" {
		return nil, eris.Wrapf(ErrBadPayload, "callback %s sem campo %s", provider, identifierFields[provider])
	}

	rec := &model.ResultRecord{
		CorrelationKey: model.CorrelationKey(provider, identifier),
		Provider:       provider,
		Identifier:     identifier,
		RawPayload:     body,
		ReceivedAt:     time.Now().UTC(),
	}

	if msg := p.errorMessage(); msg != "" {
		rec.Status = model.ResultStatusError
		rec.Message = msg
	} else if b := p.balance(); b != nil {
		rec.Status = model.ResultStatusSuccess
		rec.Balance = b
		rec.Message = p.message()
	} else {
		rec.Status = model.ResultStatusError
		rec.Message = "callback sem saldo nem erro reconhecível"
	}

	if err := r.store.UpsertResult(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "webhook: upsert result %s", rec.CorrelationKey)
	}

	if err := r.store.AppendActivity(ctx, &model.ActivityLogEntry{
		ID:         uuid.New().String(),
		Action:     model.ActionWebhookReceived,
		Identifier: identifier,
		Provider:   provider,
		Detail:     string(rec.Status),
		CreatedAt:  rec.ReceivedAt,
	}); err != nil {
		zap.L().Warn("webhook: append activity failed",
			zap.String("correlation_key", rec.CorrelationKey), zap.Error(err))
	}

	zap.L().Info("webhook: callback processed",
		zap.String("provider", string(provider)),
		zap.String("correlation_key", rec.CorrelationKey),
		zap.String("status", string(rec.Status)))
	return rec, nil
}
