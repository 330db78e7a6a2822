package model

import "time"

// PartnerCredentials is the stored credential blob for one provider and
// owner. Field names are provider-specific (client id, secret, user, etc.);
// the gateway for each provider knows which fields it requires.
type PartnerCredentials struct {
	OwnerID   string            `json:"owner_id"`
	Provider  Provider          `json:"provider"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Field returns the named credential field, empty when absent.
func (c *PartnerCredentials) Field(name string) string {
	if c == nil {
		return ""
	}
	return c.Fields[name]
}
