package api

import "cryptofolio/pkg/cryptofolio"

type addHoldingPayload struct {
	Ticker string             `json:"ticker"`
	Amount cryptofolio.Amount `json:"amount"`
}

type setAmountPayload struct {
	Amount cryptofolio.Amount `json:"amount"`
}

type removeHoldingsPayload struct {
	ProviderIDs []string `json:"provider_ids"`
}

type selectionPayload struct {
	ProviderID string `json:"provider_id"`
	Selected   bool   `json:"selected"`
}

type beginEditPayload struct {
	ProviderID string `json:"provider_id"`
}

type commitEditPayload struct {
	Amount cryptofolio.Amount `json:"amount"`
}

type operationLogPayload struct {
	Operation  string  `json:"operation_type"`
	Ticker     *string `json:"ticker"`
	ProviderID *string `json:"provider_id"`
	Details    *string `json:"details"`
}

type resolveResponse struct {
	Query      string `json:"query"`
	ProviderID string `json:"provider_id"`
}
