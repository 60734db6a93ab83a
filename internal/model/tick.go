package model

import "time"

// OHLC is the open/high/low/close snapshot carried on quote and full ticks.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Tick is a single market-data update for one instrument, as delivered by the
// streaming feed. Immutable once parsed; a newer tick for the same instrument
// replaces the older one wholesale.
type Tick struct {
	InstrumentToken int64     `json:"instrument_token"`
	LastPrice       float64   `json:"last_price"`
	LastQuantity    int64     `json:"last_quantity"`
	AveragePrice    float64   `json:"average_price"`
	Volume          int64     `json:"volume"`
	BuyQuantity     int64     `json:"buy_quantity"`
	SellQuantity    int64     `json:"sell_quantity"`
	OHLC            OHLC      `json:"ohlc"`
	Timestamp       time.Time `json:"timestamp"`
}
