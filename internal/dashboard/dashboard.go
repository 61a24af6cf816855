// Package dashboard polls the broker on behalf of each dashboard view and keeps
// the latest result per view.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"paper_dashboard/internal/market"
	"paper_dashboard/internal/models"
)

// DefaultInterval is how often each view refreshes.
const DefaultInterval = 10 * time.Second

// MsgHome is shown when either home view read fails.
const MsgHome = "Failed to fetch trading data"

// Options configures a Dashboard.
type Options struct {
	Interval time.Duration
	Symbols  []string // markets view symbols, defaults to market.DefaultSymbols
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Dashboard owns the pollers and their shared State.
type Dashboard struct {
	broker   market.Broker
	state    *State
	interval time.Duration
	symbols  []string
	log      zerolog.Logger
	now      func() time.Time
	inflight sync.WaitGroup
}

// New returns a Dashboard reading from broker.
func New(broker market.Broker, opts Options) *Dashboard {
	d := &Dashboard{
		broker:   broker,
		state:    NewState(),
		interval: opts.Interval,
		symbols:  opts.Symbols,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if d.interval <= 0 {
		d.interval = DefaultInterval
	}
	if len(d.symbols) == 0 {
		d.symbols = market.DefaultSymbols
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// State exposes the latest snapshots.
func (d *Dashboard) State() *State {
	return d.state
}

// Symbols returns the markets view symbols.
func (d *Dashboard) Symbols() []string {
	return d.symbols
}

// Refresh fetches view now, stores and returns the result.
// The returned error is the user-facing failure, also recorded in the snapshot.
func (d *Dashboard) Refresh(ctx context.Context, view View) (Snapshot, error) {
	snap, err := d.fetch(ctx, view)
	d.state.Set(snap)
	return snap, err
}

// RunAll starts a poller per view and blocks until ctx is done.
func (d *Dashboard) RunAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, v := range Views {
		wg.Add(1)
		go func(v View) {
			defer wg.Done()
			d.Run(ctx, v)
		}(v)
	}
	wg.Wait()
}

// Run refreshes view immediately and then on every tick until ctx is done.
//
// Requests already in flight when ctx ends are not aborted; their results
// are discarded. Call Wait to block until they finish.
func (d *Dashboard) Run(ctx context.Context, view View) {
	d.log.Info().Str("view", string(view)).Dur("interval", d.interval).Msg("poller started")

	d.tick(ctx, view)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Str("view", string(view)).Msg("poller stopped")
			return
		case <-ticker.C:
			// TODO: skip the tick while the previous refresh of this view is still in flight.
			d.tick(ctx, view)
		}
	}
}

// Wait blocks until every in-flight poll has returned.
func (d *Dashboard) Wait() {
	d.inflight.Wait()
}

func (d *Dashboard) tick(ctx context.Context, view View) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		snap, err := d.fetch(context.WithoutCancel(ctx), view)
		if ctx.Err() != nil {
			d.log.Debug().Str("view", string(view)).Msg("discarding result of stopped view")
			return
		}
		if err != nil {
			d.log.Warn().Err(err).Str("view", string(view)).Msg("poll failed")
		}
		d.state.Set(snap)
	}()
}

// fetch builds the next snapshot for view. On failure the previous data is kept.
func (d *Dashboard) fetch(ctx context.Context, view View) (Snapshot, error) {
	snap := Snapshot{View: view, UpdatedAt: d.now()}
	if prev, ok := d.state.Get(view); ok {
		snap.Data = prev.Data
	}

	var (
		data any
		err  error
	)
	switch view {
	case ViewHome:
		data, err = d.fetchHome(ctx)
	case ViewMarkets:
		data, err = d.fetchMarkets(ctx)
	case ViewOrders:
		data, err = d.broker.GetOrders(ctx, models.OrdersAll)
		if err != nil {
			err = errors.New(market.UserMessage(err))
		}
	default:
		err = fmt.Errorf("unknown view %q", view)
	}

	if err != nil {
		snap.Error = err.Error()
		return snap, err
	}
	snap.Data = data
	return snap, nil
}

// fetchHome issues the account and positions reads concurrently and joins them.
func (d *Dashboard) fetchHome(ctx context.Context) (HomeData, error) {
	var home HomeData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		acct, err := d.broker.GetAccount(gctx)
		home.Account = acct
		return err
	})
	g.Go(func() error {
		positions, err := d.broker.GetPositions(gctx)
		home.Positions = positions
		return err
	})
	if err := g.Wait(); err != nil {
		d.log.Error().Err(err).Msg("home view refresh failed")
		return HomeData{}, errors.New(MsgHome)
	}
	return home, nil
}

func (d *Dashboard) fetchMarkets(ctx context.Context) (MarketsData, error) {
	tickers, err := d.broker.GetMarketData(ctx, d.symbols)
	if err != nil {
		return MarketsData{}, fmt.Errorf("%s. Please check your internet connection and try again.", market.UserMessage(err))
	}
	return MarketsData{Symbols: d.symbols, Tickers: tickers}, nil
}

// FilterSymbols keeps the symbols containing term, case-insensitively.
func FilterSymbols(symbols []string, term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if strings.Contains(strings.ToLower(s), term) {
			out = append(out, s)
		}
	}
	return out
}
