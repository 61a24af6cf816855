package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper_dashboard/internal/dashboard"
	"paper_dashboard/internal/market"
	"paper_dashboard/internal/models"
	"paper_dashboard/internal/session"
)

type fakeBroker struct {
	account     *models.Account
	orders      []models.Order
	tickers     map[string]models.MarketTicker
	err         error
	gotStatus   models.OrderQuery
	gotOrder    models.MarketOrder
	gotSymbols  []string
	gotBars     [2]string
	placeCalled bool
}

func (f *fakeBroker) GetAccount(ctx context.Context) (*models.Account, error) {
	return f.account, f.err
}

func (f *fakeBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	return []models.Position{}, f.err
}

func (f *fakeBroker) GetOrders(ctx context.Context, status models.OrderQuery) ([]models.Order, error) {
	f.gotStatus = status
	return f.orders, f.err
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, order models.MarketOrder) (*models.Order, error) {
	f.placeCalled = true
	f.gotOrder = order
	if err := order.Validate(); err != nil {
		return nil, market.Wrap("place_order", market.MsgPlace, &market.ValidationError{Message: err.Error()})
	}
	if f.err != nil {
		return nil, f.err
	}
	qty := order.Qty
	return &models.Order{ID: "o-1", Symbol: order.Symbol, Side: order.Side, Qty: &qty, Status: "accepted"}, nil
}

func (f *fakeBroker) GetBars(ctx context.Context, symbol, timeframe string) ([]models.PriceBar, error) {
	f.gotBars = [2]string{symbol, timeframe}
	return []models.PriceBar{}, f.err
}

func (f *fakeBroker) GetMarketData(ctx context.Context, symbols []string) (map[string]models.MarketTicker, error) {
	f.gotSymbols = symbols
	if len(symbols) == 0 {
		err := &market.ValidationError{Message: "No symbols provided"}
		return nil, market.Wrap("get_market_data", market.MsgMarketData(err), err)
	}
	return f.tickers, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []*models.Order
	ctxErr error
	gate   chan struct{} // when set, OrderPlaced blocks until it is closed
}

func (n *recordingNotifier) OrderPlaced(ctx context.Context, order *models.Order) {
	if n.gate != nil {
		<-n.gate
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order)
	n.ctxErr = ctx.Err()
}

func (n *recordingNotifier) placed() []*models.Order {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.orders
}

type testEnv struct {
	handler  *Handler
	router   http.Handler
	broker   *fakeBroker
	session  *session.Session
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, loggedIn bool) *testEnv {
	t.Helper()
	broker := &fakeBroker{account: &models.Account{ID: "acct-1", Cash: decimal.NewFromInt(500)}}
	sess := session.New(&session.MemoryStore{}, session.StaticVerifier{Email: "admin@gmail.com", Password: "123456"})
	if loggedIn {
		ok, err := sess.Login("admin@gmail.com", "123456")
		require.NoError(t, err)
		require.True(t, ok)
	}
	dash := dashboard.New(broker, dashboard.Options{Symbols: []string{"AAPL", "MSFT", "META"}})
	notifier := &recordingNotifier{}
	h := NewHandler(broker, dash, sess, notifier, zerolog.Nop())
	return &testEnv{
		handler:  h,
		router:   SetupRoutes(h, prometheus.NewRegistry()),
		broker:   broker,
		session:  sess,
		notifier: notifier,
	}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do("GET", "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, false)

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/account"},
		{"GET", "/api/positions"},
		{"GET", "/api/orders"},
		{"POST", "/api/orders"},
		{"GET", "/api/bars/AAPL"},
		{"GET", "/api/markets"},
		{"GET", "/api/views/home"},
		{"POST", "/api/views/home/refresh"},
	} {
		rec := env.do(tc.method, tc.path, "{}")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.Equal(t, "not authenticated", decodeError(t, rec), tc.path)
	}
	assert.False(t, env.broker.placeCalled)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do("POST", "/api/session", `{"email":"admin@gmail.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/api/session", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/session", `{"email":"admin@gmail.com","password":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":true}`, rec.Body.String())

	rec = env.do("GET", "/api/session", "")
	assert.JSONEq(t, `{"authenticated":true}`, rec.Body.String())

	rec = env.do("GET", "/api/account", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do("DELETE", "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.session.IsAuthenticated())

	rec = env.do("GET", "/api/account", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAccount_DomainErrorIs502(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.err = market.Wrap("get_account", market.MsgAccount, errors.New("HTTP error! status: 500"))

	rec := env.do("GET", "/api/account", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, market.MsgAccount, decodeError(t, rec))
}

func TestGetOrders_StatusFilter(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do("GET", "/api/orders", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.OrdersAll, env.broker.gotStatus)

	rec = env.do("GET", "/api/orders?status=open", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.OrdersOpen, env.broker.gotStatus)

	rec = env.do("GET", "/api/orders?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do("POST", "/api/orders", `{"symbol":" aapl ","qty":"3","side":"BUY"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "AAPL", env.broker.gotOrder.Symbol)
	assert.Equal(t, models.Buy, env.broker.gotOrder.Side)
	assert.True(t, env.broker.gotOrder.Qty.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "market", env.broker.gotOrder.Type)
	assert.Equal(t, "day", env.broker.gotOrder.TimeInForce)

	env.handler.Wait()
	require.Len(t, env.notifier.placed(), 1)
	assert.Equal(t, "o-1", env.notifier.placed()[0].ID)
}

func TestPlaceOrder_SlowNotifierDoesNotDelayResponse(t *testing.T) {
	env := newTestEnv(t, true)
	env.notifier.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"symbol":"AAPL","qty":1,"side":"buy"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, http.StatusCreated, rec.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("order response waited for the notifier")
	}

	cancel() // the server cancels the request context once the handler returns
	close(env.notifier.gate)
	env.handler.Wait()
	require.Len(t, env.notifier.placed(), 1)
	assert.NoError(t, env.notifier.ctxErr, "notification outlives the request context")
}

func TestPlaceOrder_InvalidInputIs400(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do("POST", "/api/orders", `{"symbol":"AAPL","qty":0,"side":"buy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, market.MsgPlace, decodeError(t, rec))
	env.handler.Wait()
	assert.Empty(t, env.notifier.placed())

	rec = env.do("POST", "/api/orders", `{"symbol":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_BrokerRejectionIsNotNotified(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.err = market.Wrap("place_order", market.MsgPlace, errors.New("insufficient buying power"))

	rec := env.do("POST", "/api/orders", `{"symbol":"AAPL","qty":1,"side":"sell"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env.handler.Wait()
	assert.Empty(t, env.notifier.placed())
}

func TestGetBars(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do("GET", "/api/bars/msft?timeframe=1H", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, [2]string{"MSFT", "1H"}, env.broker.gotBars)
}

func TestGetMarkets(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.tickers = map[string]models.MarketTicker{"MSFT": {Symbol: "MSFT"}}

	rec := env.do("GET", "/api/markets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "MSFT", "META"}, env.broker.gotSymbols)

	rec = env.do("GET", "/api/markets?q=m", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"MSFT", "META"}, env.broker.gotSymbols)

	rec = env.do("GET", "/api/markets?symbols=tsla,%20nvda,,", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"TSLA", "NVDA"}, env.broker.gotSymbols)

	var data dashboard.MarketsData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, []string{"TSLA", "NVDA"}, data.Symbols)
}

func TestGetMarkets_NoSearchMatchIsEmptyList(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do("GET", "/api/markets?q=zzz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbols":[],"tickers":{}}`, rec.Body.String())
	assert.Nil(t, env.broker.gotSymbols, "nothing is fetched")
}

func TestGetMarkets_EmptySymbolListIs400(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do("GET", "/api/markets?symbols=,,", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Failed to fetch market data: No symbols provided", decodeError(t, rec))
}

func TestViews(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.orders = []models.Order{{ID: "o-9"}}

	rec := env.do("GET", "/api/views/orders", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"view":"orders","updated_at":"0001-01-01T00:00:00Z"}`, rec.Body.String())

	rec = env.do("POST", "/api/views/orders/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do("GET", "/api/views/orders", "")
	var snap struct {
		View string         `json:"view"`
		Data []models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "orders", snap.View)
	require.Len(t, snap.Data, 1)
	assert.Equal(t, "o-9", snap.Data[0].ID)

	rec = env.do("GET", "/api/views/profile", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshView_FailureIs502WithMessage(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.err = market.Wrap("get_account", market.MsgAccount, errors.New("down"))

	rec := env.do("POST", "/api/views/home/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var snap dashboard.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, dashboard.MsgHome, snap.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do("GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
