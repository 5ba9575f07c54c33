package transaction

// VelocityStats holds the count and amount sum of a subject's prior
// transactions inside one trailing window.
type VelocityStats struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
}

// VelocityWindows groups the three trailing windows used as fraud signals.
type VelocityWindows struct {
	H1  VelocityStats `json:"1h"`
	H24 VelocityStats `json:"24h"`
	D7  VelocityStats `json:"7d"`
}

// VelocityAggregates is the read-only aggregate computed fresh per scoring
// attempt, evaluated as of the transaction timestamp. Zero history yields
// the zero value, never an error.
type VelocityAggregates struct {
	Customer VelocityWindows `json:"customer"`
	IP       VelocityWindows `json:"ip"`
	Merchant VelocityWindows `json:"merchant"`
}
