package alpaca

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper_dashboard/internal/market"
	"paper_dashboard/internal/models"
)

// Provider implements market.Broker on top of the official Alpaca SDK.
// The SDK does its own retrying, so the messages and normalization rules are
// the only part shared with the REST broker.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
	keyID       string
	secretKey   string
	log         zerolog.Logger
	now         func() time.Time
}

// Ensure Provider implements the interface
var _ market.Broker = (*Provider)(nil)

// Options configures a Provider. Empty credentials fall back to the SDK's
// APCA_API_* environment lookup.
type Options struct {
	KeyID     string
	SecretKey string
	BaseURL   string
	DataURL   string
	Logger    zerolog.Logger
}

// NewProvider returns a new Alpaca provider.
func NewProvider(opts Options) *Provider {
	return &Provider{
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.KeyID,
			APISecret: opts.SecretKey,
			BaseURL:   opts.DataURL,
		}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.KeyID,
			APISecret: opts.SecretKey,
			BaseURL:   opts.BaseURL,
		}),
		keyID:     opts.KeyID,
		secretKey: opts.SecretKey,
		log:       opts.Logger,
		now:       time.Now,
	}
}

func (p *Provider) fail(op, message string, err error) error {
	p.log.Error().Err(err).Str("op", op).Str("backend", "sdk").Msg("broker call failed")
	return market.Wrap(op, message, err)
}

// --- Trading ---

func (p *Provider) GetAccount(_ context.Context) (*models.Account, error) {
	a, err := p.tradeClient.GetAccount()
	if err != nil {
		return nil, p.fail("get_account", market.MsgAccount, err)
	}
	return &models.Account{
		ID:             a.ID,
		Currency:       a.Currency,
		Status:         string(a.Status),
		PortfolioValue: a.PortfolioValue,
		BuyingPower:    a.BuyingPower,
		Cash:           a.Cash,
		Equity:         a.Equity,
	}, nil
}

func (p *Provider) GetPositions(_ context.Context) ([]models.Position, error) {
	alpacaPositions, err := p.tradeClient.GetPositions()
	if err != nil {
		return nil, p.fail("get_positions", market.MsgPositions, err)
	}

	result := make([]models.Position, 0, len(alpacaPositions))
	for _, x := range alpacaPositions {
		result = append(result, models.Position{
			Symbol:         x.Symbol,
			Qty:            x.Qty,
			MarketValue:    deref(x.MarketValue),
			AvgEntryPrice:  x.AvgEntryPrice,
			CurrentPrice:   deref(x.CurrentPrice),
			UnrealizedPL:   deref(x.UnrealizedPL),
			UnrealizedPLPC: deref(x.UnrealizedPLPC),
		})
	}
	return result, nil
}

func (p *Provider) GetOrders(_ context.Context, status models.OrderQuery) ([]models.Order, error) {
	if status == "" {
		status = models.OrdersAll
	}
	orders, err := p.tradeClient.GetOrders(alpaca.GetOrdersRequest{
		Status: string(status),
		Limit:  market.DefaultOrderLimit,
	})
	if err != nil {
		return nil, p.fail("get_orders", market.MsgOrders, err)
	}

	result := make([]models.Order, 0, len(orders))
	for i := range orders {
		result = append(result, mapOrder(&orders[i]))
	}
	return result, nil
}

func (p *Provider) PlaceOrder(_ context.Context, order models.MarketOrder) (*models.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, p.fail("place_order", market.MsgPlace, &market.ValidationError{Message: err.Error()})
	}
	qty := order.Qty
	o, err := p.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(order.Side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return nil, p.fail("place_order", market.MsgPlace, err)
	}
	placed := mapOrder(o)
	return &placed, nil
}

// --- Market Data ---

func (p *Provider) GetBars(_ context.Context, symbol, timeframe string) ([]models.PriceBar, error) {
	if timeframe == "" {
		timeframe = market.DefaultTimeframe
	}
	tf, err := ParseTimeFrame(timeframe)
	if err != nil {
		return nil, p.fail("get_bars", market.MsgBars(symbol), &market.ValidationError{Message: err.Error()})
	}

	end := p.now()
	bars, err := p.mdClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     end.AddDate(0, 0, -30),
		End:       end,
	})
	if err != nil {
		return nil, p.fail("get_bars", market.MsgBars(symbol), err)
	}

	result := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		result = append(result, models.PriceBar{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return result, nil
}

// GetMarketData re-expresses SDK snapshots as the loose map the normalizer
// accepts so both backends apply the same presence rules.
func (p *Provider) GetMarketData(_ context.Context, symbols []string) (map[string]models.MarketTicker, error) {
	const op = "get_market_data"
	if len(symbols) == 0 {
		err := &market.ValidationError{Message: "No symbols provided"}
		return nil, p.fail(op, market.MsgMarketData(err), err)
	}
	if err := market.CheckCredentials(p.keyID, p.secretKey); err != nil {
		return nil, p.fail(op, market.MsgMarketData(err), err)
	}

	snaps, err := p.mdClient.GetSnapshots(symbols, marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, p.fail(op, market.MsgMarketData(err), err)
	}

	tickers, err := market.Normalize(symbols, snapshotsToRaw(snaps), p.now)
	if err != nil {
		return nil, p.fail(op, market.MsgMarketData(err), err)
	}
	return tickers, nil
}

func snapshotsToRaw(snaps map[string]*marketdata.Snapshot) map[string]any {
	raw := make(map[string]any, len(snaps))
	for symbol, s := range snaps {
		if s == nil {
			continue
		}
		entry := map[string]any{}
		if s.LatestTrade != nil {
			entry["latestTrade"] = map[string]any{
				"price":     s.LatestTrade.Price,
				"timestamp": s.LatestTrade.Timestamp.UTC().Format(time.RFC3339Nano),
			}
		}
		if s.PrevDailyBar != nil {
			entry["prevDailyBar"] = map[string]any{"close": s.PrevDailyBar.Close}
		}
		if s.DailyBar != nil {
			entry["dailyBar"] = barToRaw(s.DailyBar)
		}
		if s.MinuteBar != nil {
			entry["minuteBar"] = barToRaw(s.MinuteBar)
		}
		raw[symbol] = entry
	}
	return raw
}

func barToRaw(b *marketdata.Bar) map[string]any {
	return map[string]any{
		"open":   b.Open,
		"high":   b.High,
		"low":    b.Low,
		"close":  b.Close,
		"volume": float64(b.Volume),
	}
}

// ParseTimeFrame understands the dashboard's timeframe strings: "1D", "15Min", "1H", "1Hour", "1W", "1M".
func ParseTimeFrame(s string) (marketdata.TimeFrame, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe %q", s)
	}

	var unit marketdata.TimeFrameUnit
	switch strings.ToLower(s[i:]) {
	case "t", "min":
		unit = marketdata.Min
	case "h", "hour":
		unit = marketdata.Hour
	case "d", "day":
		unit = marketdata.Day
	case "w", "week":
		unit = marketdata.Week
	case "m", "month":
		unit = marketdata.Month
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe unit in %q", s)
	}
	return marketdata.NewTimeFrame(n, unit), nil
}

// Helpers

// deref safely dereferences decimal pointers from the Alpaca SDK.
func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func mapOrder(o *alpaca.Order) models.Order {
	res := models.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           models.Side(o.Side),
		Type:           string(o.Type),
		TimeInForce:    string(o.TimeInForce),
		Qty:            o.Qty,
		FilledQty:      o.FilledQty,
		FilledAvgPrice: o.FilledAvgPrice,
		LimitPrice:     o.LimitPrice,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
		FilledAt:       o.FilledAt,
		CanceledAt:     o.CanceledAt,
	}
	return res
}
