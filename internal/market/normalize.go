package market

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"paper_dashboard/internal/models"
)

// isoMillis matches the timestamps the dashboard emits: UTC with milliseconds.
const isoMillis = "2006-01-02T15:04:05.000Z"

// CheckCredentials fails when either API credential is missing.
func CheckCredentials(keyID, secret string) error {
	if keyID == "" || secret == "" {
		return invalid("API credentials are not configured")
	}
	return nil
}

// NormalizeJSON decodes a snapshots payload and normalizes it.
func NormalizeJSON(symbols []string, payload []byte, now func() time.Time) (map[string]models.MarketTicker, error) {
	if len(symbols) == 0 {
		return nil, invalid("No symbols provided")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, invalid("Invalid response format from API")
	}
	return Normalize(symbols, raw, now)
}

// Normalize turns a loosely typed snapshot map keyed by symbol into typed tickers.
//
// Only requested symbols with a truthy raw value produce a ticker. Each sub-record
// is present iff it was present upstream, and every numeric field is coerced on
// its own, defaulting to 0. A present but empty sub-record therefore yields zeros.
func Normalize(symbols []string, raw any, now func() time.Time) (map[string]models.MarketTicker, error) {
	if len(symbols) == 0 {
		return nil, invalid("No symbols provided")
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("Invalid response format from API")
	}
	if now == nil {
		now = time.Now
	}

	out := make(map[string]models.MarketTicker, len(symbols))
	for _, symbol := range symbols {
		v, found := data[symbol]
		if !found || !truthy(v) {
			continue
		}
		snap := asObject(v)

		ticker := models.MarketTicker{Symbol: symbol}
		if sub, ok := subRecord(snap, "latestTrade"); ok {
			ts := stringField(sub, "timestamp", "t")
			if ts == "" {
				ts = now().UTC().Format(isoMillis)
			}
			ticker.LatestTrade = &models.LatestTrade{
				Price:     number(sub, "price", "p"),
				Timestamp: ts,
			}
		}
		if sub, ok := subRecord(snap, "prevDailyBar"); ok {
			ticker.PrevDailyBar = &models.PrevDailyBar{Close: number(sub, "close", "c")}
		}
		if sub, ok := subRecord(snap, "dailyBar"); ok {
			ticker.DailyBar = ohlcv(sub)
		}
		if sub, ok := subRecord(snap, "minuteBar"); ok {
			ticker.MinuteBar = ohlcv(sub)
		}
		out[symbol] = ticker
	}
	return out, nil
}

func ohlcv(sub map[string]any) *models.OHLCV {
	return &models.OHLCV{
		Open:   number(sub, "open", "o"),
		High:   number(sub, "high", "h"),
		Low:    number(sub, "low", "l"),
		Close:  number(sub, "close", "c"),
		Volume: number(sub, "volume", "v"),
	}
}

// subRecord returns the sub-object under key when it is truthy.
// A truthy non-object value counts as present with no fields.
func subRecord(snap map[string]any, key string) (map[string]any, bool) {
	v, ok := snap[key]
	if !ok || !truthy(v) {
		return nil, false
	}
	return asObject(v), true
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// lookup returns the first key present, long names take precedence over Alpaca's short ones.
func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, keys ...string) string {
	v, ok := lookup(obj, keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// number coerces a field to a finite float64; anything else becomes 0.
func number(obj map[string]any, keys ...string) float64 {
	v, ok := lookup(obj, keys...)
	if !ok {
		return 0
	}
	return toFinite(v)
}

func toFinite(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// truthy mirrors the loose presence check applied to snapshot values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}
