package model

// PriceBar is one row of daily price history
type PriceBar struct {
	Ticker string  `json:"ticker" db:"ticker"`
	Date   string  `json:"date" db:"date"`
	Open   float64 `json:"open" db:"open"`
	High   float64 `json:"high" db:"high"`
	Low    float64 `json:"low" db:"low"`
	Close  float64 `json:"close" db:"close"`
	Volume int64   `json:"volume" db:"volume"`
}

// Key returns the natural unique key of the bar
func (p PriceBar) Key() string {
	return p.Ticker + "|" + p.Date
}

// Complete reports whether every numeric field was resolved
func (p PriceBar) Complete() bool {
	return p.Date != "" && p.Open != 0 && p.High != 0 && p.Low != 0 && p.Close != 0 && p.Volume != 0
}
