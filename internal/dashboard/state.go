package dashboard

import (
	"sync"
	"time"

	"paper_dashboard/internal/models"
)

// View names the dashboard screens that poll the broker.
type View string

const (
	ViewHome    View = "home"
	ViewMarkets View = "markets"
	ViewOrders  View = "orders"
)

// Views lists every pollable view.
var Views = []View{ViewHome, ViewMarkets, ViewOrders}

// ParseView validates a view name.
func ParseView(s string) (View, bool) {
	for _, v := range Views {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

// HomeData is the account summary plus open positions.
type HomeData struct {
	Account   *models.Account   `json:"account"`
	Positions []models.Position `json:"positions"`
}

// MarketsData keeps the requested symbol order next to the tickers.
// Symbols without a ticker render as "N/A".
type MarketsData struct {
	Symbols []string                       `json:"symbols"`
	Tickers map[string]models.MarketTicker `json:"tickers"`
}

// Snapshot is the latest result for one view. On failure Data keeps the last
// successful result and Error holds the message to show.
type Snapshot struct {
	View      View      `json:"view"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// State holds the latest Snapshot per view. Each Set replaces the slot outright.
type State struct {
	mu    sync.RWMutex
	views map[View]Snapshot
}

// NewState returns an empty State.
func NewState() *State {
	return &State{views: make(map[View]Snapshot)}
}

func (s *State) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[snap.View] = snap
}

func (s *State) Get(v View) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.views[v]
	return snap, ok
}
