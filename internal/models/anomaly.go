// Package models defines data structures and domain types.
package models

// Anomaly is a series point that deviates from its trailing baseline.
type Anomaly struct {
	Period        string  `json:"period"`
	Actual        float64 `json:"actual"`
	Expected      float64 `json:"expected"`
	Deviation     float64 `json:"deviation"`
	PercentChange float64 `json:"percentChange"`
	Severity      string  `json:"severity"`
}
