package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper_dashboard/internal/dashboard"
	"paper_dashboard/internal/market"
	"paper_dashboard/internal/models"
	"paper_dashboard/internal/session"
	"paper_dashboard/internal/telegram"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	broker   market.Broker
	dash     *dashboard.Dashboard
	session  *session.Session
	notifier telegram.Notifier
	log      zerolog.Logger

	notifying sync.WaitGroup
}

// NewHandler creates a new Handler. A nil notifier disables order notifications.
func NewHandler(broker market.Broker, dash *dashboard.Dashboard, sess *session.Session, notifier telegram.Notifier, log zerolog.Logger) *Handler {
	if notifier == nil {
		notifier = telegram.Nop{}
	}
	return &Handler{
		broker:   broker,
		dash:     dash,
		session:  sess,
		notifier: notifier,
		log:      log,
	}
}

// Wait blocks until every pending order notification has been sent.
func (h *Handler) Wait() {
	h.notifying.Wait()
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// --- Session ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok, err := h.session.Login(req.Email, req.Password)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to persist session")
		respondError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// Logout handles DELETE /api/session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(); err != nil {
		h.log.Error().Err(err).Msg("failed to clear session")
		respondError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionStatus handles GET /api/session
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"authenticated": h.session.IsAuthenticated()})
}

// --- Trading ---

// GetAccount handles GET /api/account
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.broker.GetAccount(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

// GetPositions handles GET /api/positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.broker.GetPositions(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

// GetOrders handles GET /api/orders?status=
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	status, err := models.ParseOrderQuery(r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders, err := h.broker.GetOrders(r.Context(), status)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

type orderRequest struct {
	Symbol string          `json:"symbol"`
	Qty    decimal.Decimal `json:"qty"`
	Side   string          `json:"side"`
}

// PlaceOrder handles POST /api/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side := models.Side(strings.ToLower(strings.TrimSpace(req.Side)))
	placed, err := h.broker.PlaceOrder(r.Context(), models.NewMarketOrder(req.Symbol, req.Qty, side))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// Sent in the background so notifier retries never delay the response
	notifyCtx := context.WithoutCancel(r.Context())
	h.notifying.Add(1)
	go func() {
		defer h.notifying.Done()
		h.notifier.OrderPlaced(notifyCtx, placed)
	}()
	respondJSON(w, http.StatusCreated, placed)
}

// --- Market Data ---

// GetBars handles GET /api/bars/{symbol}?timeframe=
func (h *Handler) GetBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	bars, err := h.broker.GetBars(r.Context(), symbol, r.URL.Query().Get("timeframe"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bars)
}

// GetMarkets handles GET /api/markets?symbols=a,b&q=
// Without symbols the dashboard's default list is used. q narrows the list
// before fetching.
func (h *Handler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	symbols := h.dash.Symbols()
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols = splitSymbols(raw)
	}
	if q := r.URL.Query().Get("q"); q != "" {
		symbols = dashboard.FilterSymbols(symbols, q)
		// A search with no matches is an empty list, not a failed fetch
		if len(symbols) == 0 {
			respondJSON(w, http.StatusOK, dashboard.MarketsData{Symbols: []string{}, Tickers: map[string]models.MarketTicker{}})
			return
		}
	}

	tickers, err := h.broker.GetMarketData(r.Context(), symbols)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dashboard.MarketsData{Symbols: symbols, Tickers: tickers})
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// --- Views ---

// GetView handles GET /api/views/{view}
// A view that has not been polled yet returns an empty snapshot.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	view, ok := dashboard.ParseView(mux.Vars(r)["view"])
	if !ok {
		respondError(w, http.StatusNotFound, "unknown view")
		return
	}
	snap, ok := h.dash.State().Get(view)
	if !ok {
		snap = dashboard.Snapshot{View: view}
	}
	respondJSON(w, http.StatusOK, snap)
}

// RefreshView handles POST /api/views/{view}/refresh
func (h *Handler) RefreshView(w http.ResponseWriter, r *http.Request) {
	view, ok := dashboard.ParseView(mux.Vars(r)["view"])
	if !ok {
		respondError(w, http.StatusNotFound, "unknown view")
		return
	}
	snap, err := h.dash.Refresh(r.Context(), view)
	if err != nil {
		respondJSON(w, http.StatusBadGateway, snap)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// --- Helpers ---

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondDomainError maps bad input to 400 and upstream failures to 502.
func respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if market.IsValidation(err) {
		status = http.StatusBadRequest
	}
	respondError(w, status, market.UserMessage(err))
}
