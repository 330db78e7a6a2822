package model

import (
	"fmt"
	"strings"
	"time"
)

// ResultStatus classifies a partner response for one identifier.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

// ResultRecord is the current partner response for one identifier. There is
// at most one record per correlation key; a later arrival overwrites it.
type ResultRecord struct {
	CorrelationKey string       `json:"correlation_key"`
	Provider       Provider     `json:"provider"`
	Identifier     string       `json:"identifier"`
	Status         ResultStatus `json:"status"`
	Message        string       `json:"message"`
	Balance        *float64     `json:"balance,omitempty"`
	RawPayload     []byte       `json:"raw_payload,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`
}

// CorrelationKey is the canonical result-store key for an identifier. Both
// the synchronous gateway path and the webhook path must key their writes
// with this scheme; provider-issued correlation ids are kept only inside the
// raw payload.
func CorrelationKey(provider Provider, identifier string) string {
	return fmt.Sprintf("%s:%s", provider, DigitsOnly(identifier))
}

// DigitsOnly strips everything but digits from an identifier, so that
// formatted CPFs ("111.111.111-11") and bare ones key identically.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
