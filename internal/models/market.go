package models

import "time"

// LatestTrade is the most recent trade in a snapshot.
type LatestTrade struct {
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// PrevDailyBar carries the previous session's close.
type PrevDailyBar struct {
	Close float64 `json:"close"`
}

// OHLCV is the shape shared by the daily and minute bars of a snapshot.
type OHLCV struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// MarketTicker is the normalized per-symbol snapshot.
// A nil sub-record means the upstream snapshot did not include it.
type MarketTicker struct {
	Symbol       string        `json:"symbol"`
	LatestTrade  *LatestTrade  `json:"latestTrade,omitempty"`
	PrevDailyBar *PrevDailyBar `json:"prevDailyBar,omitempty"`
	DailyBar     *OHLCV        `json:"dailyBar,omitempty"`
	MinuteBar    *OHLCV        `json:"minuteBar,omitempty"`
}

// Price returns the latest trade price, ok is false when there is no trade.
func (t MarketTicker) Price() (float64, bool) {
	if t.LatestTrade == nil {
		return 0, false
	}
	return t.LatestTrade.Price, true
}

// Change returns the move since the previous close and its percentage.
// ok is false when either record is missing or the previous close is zero.
func (t MarketTicker) Change() (delta, pct float64, ok bool) {
	if t.LatestTrade == nil || t.PrevDailyBar == nil || t.PrevDailyBar.Close == 0 {
		return 0, 0, false
	}
	delta = t.LatestTrade.Price - t.PrevDailyBar.Close
	return delta, delta / t.PrevDailyBar.Close * 100, true
}

// PriceBar is a candlestick used for charting.
// JSON keys follow the Alpaca v2 bars payload.
type PriceBar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}
