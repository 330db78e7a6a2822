package model

// Offer is a normalized credit offer from any provider.
type Offer struct {
	Provider     Provider `json:"provider"`
	Code         string   `json:"code"`
	Description  string   `json:"description"`
	MaxValue     float64  `json:"max_value"`
	Installments int      `json:"installments,omitempty"`
	MonthlyRate  float64  `json:"monthly_rate,omitempty"`
}

// PersonalData identifies a person for authorization-link generation.
type PersonalData struct {
	CPF       string `json:"cpf"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date,omitempty"`
	Phone     string `json:"phone,omitempty"`
}
