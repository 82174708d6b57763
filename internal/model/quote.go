package model

type Quote struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
	Currency  string  `json:"currency,omitempty"`
	ShortName string  `json:"shortName,omitempty"`
}
