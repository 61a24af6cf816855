// Package rest implements market.Broker directly against the Alpaca v2 REST API
// using the retrying httpclient.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"paper_dashboard/internal/httpclient"
	"paper_dashboard/internal/market"
	"paper_dashboard/internal/models"
)

// barsWindow is how far back GetBars looks.
const barsWindow = 30 * 24 * time.Hour

// Options configures a Broker.
type Options struct {
	KeyID       string
	SecretKey   string
	BaseURL     string
	DataURL     string // defaults to BaseURL
	MaxAttempts int
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Broker talks to the trading and market data endpoints.
type Broker struct {
	client      *httpclient.Client
	keyID       string
	secretKey   string
	baseURL     string
	dataURL     string
	maxAttempts int
	log         zerolog.Logger
	now         func() time.Time
}

// Ensure Broker implements the interface
var _ market.Broker = (*Broker)(nil)

// New returns a Broker issuing requests through client.
func New(client *httpclient.Client, opts Options) *Broker {
	b := &Broker{
		client:      client,
		keyID:       opts.KeyID,
		secretKey:   opts.SecretKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		dataURL:     strings.TrimRight(opts.DataURL, "/"),
		maxAttempts: opts.MaxAttempts,
		log:         opts.Logger,
		now:         opts.Now,
	}
	if b.dataURL == "" {
		b.dataURL = b.baseURL
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *Broker) headers() http.Header {
	h := make(http.Header)
	h.Set("APCA-API-KEY-ID", b.keyID)
	h.Set("APCA-API-SECRET-KEY", b.secretKey)
	h.Set("Content-Type", "application/json")
	return h
}

func (b *Broker) get(ctx context.Context, rawURL string, out any) error {
	return b.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    rawURL,
		Header: b.headers(),
	}, b.maxAttempts, out)
}

// fail logs the underlying detail and hides it behind message.
func (b *Broker) fail(op, message string, err error) error {
	b.log.Error().Err(err).Str("op", op).Msg("broker call failed")
	return market.Wrap(op, message, err)
}

// --- Trading ---

func (b *Broker) GetAccount(ctx context.Context) (*models.Account, error) {
	var acct models.Account
	if err := b.get(ctx, b.baseURL+"/v2/account", &acct); err != nil {
		return nil, b.fail("get_account", market.MsgAccount, err)
	}
	return &acct, nil
}

func (b *Broker) GetPositions(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	if err := b.get(ctx, b.baseURL+"/v2/positions", &positions); err != nil {
		return nil, b.fail("get_positions", market.MsgPositions, err)
	}
	if positions == nil {
		positions = []models.Position{}
	}
	return positions, nil
}

// GetOrders lists the 50 most recent orders. An empty status means all.
func (b *Broker) GetOrders(ctx context.Context, status models.OrderQuery) ([]models.Order, error) {
	if status == "" {
		status = models.OrdersAll
	}
	u := fmt.Sprintf("%s/v2/orders?status=%s&limit=%d", b.baseURL, url.QueryEscape(string(status)), market.DefaultOrderLimit)

	var orders []models.Order
	if err := b.get(ctx, u, &orders); err != nil {
		return nil, b.fail("get_orders", market.MsgOrders, err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, order models.MarketOrder) (*models.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, b.fail("place_order", market.MsgPlace, &market.ValidationError{Message: err.Error()})
	}
	body, err := json.Marshal(order)
	if err != nil {
		return nil, b.fail("place_order", market.MsgPlace, err)
	}

	var placed models.Order
	err = b.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    b.baseURL + "/v2/orders",
		Header: b.headers(),
		Body:   body,
	}, b.maxAttempts, &placed)
	if err != nil {
		return nil, b.fail("place_order", market.MsgPlace, err)
	}

	b.log.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("qty", order.Qty.String()).
		Str("order_id", placed.ID).
		Msg("order placed")
	return &placed, nil
}

// --- Market Data ---

type barsResponse struct {
	Bars []models.PriceBar `json:"bars"`
}

// GetBars fetches the trailing 30 days of bars. timeframe defaults to "1D".
func (b *Broker) GetBars(ctx context.Context, symbol, timeframe string) ([]models.PriceBar, error) {
	if timeframe == "" {
		timeframe = market.DefaultTimeframe
	}
	end := b.now().UTC()
	start := end.Add(-barsWindow)

	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	q.Set("timeframe", timeframe)
	u := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", b.dataURL, url.PathEscape(symbol), q.Encode())

	var resp barsResponse
	if err := b.get(ctx, u, &resp); err != nil {
		return nil, b.fail("get_bars", market.MsgBars(symbol), err)
	}
	if resp.Bars == nil {
		return []models.PriceBar{}, nil
	}
	return resp.Bars, nil
}

// GetMarketData fetches snapshots for symbols and normalizes them.
func (b *Broker) GetMarketData(ctx context.Context, symbols []string) (map[string]models.MarketTicker, error) {
	const op = "get_market_data"
	if len(symbols) == 0 {
		err := &market.ValidationError{Message: "No symbols provided"}
		return nil, b.fail(op, market.MsgMarketData(err), err)
	}
	if err := market.CheckCredentials(b.keyID, b.secretKey); err != nil {
		return nil, b.fail(op, market.MsgMarketData(err), err)
	}

	escaped := make([]string, len(symbols))
	for i, s := range symbols {
		escaped[i] = url.QueryEscape(s)
	}
	u := fmt.Sprintf("%s/v2/stocks/snapshots?symbols=%s", b.dataURL, strings.Join(escaped, ","))

	var payload json.RawMessage
	if err := b.get(ctx, u, &payload); err != nil {
		return nil, b.fail(op, market.MsgMarketData(err), err)
	}

	tickers, err := market.NormalizeJSON(symbols, payload, b.now)
	if err != nil {
		return nil, b.fail(op, market.MsgMarketData(err), err)
	}
	return tickers, nil
}
