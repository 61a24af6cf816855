package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"paper_dashboard/internal/market"
	"paper_dashboard/internal/models"
)

var (
	orderSymbol string
	orderQty    string
	orderSide   string
)

// snapshotCmd prints the home view once.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the account summary and open positions",
	RunE:  runSnapshot,
}

// marketsCmd prints normalized tickers.
var marketsCmd = &cobra.Command{
	Use:   "markets [symbols...]",
	Short: "Print the latest quotes (defaults to the dashboard watchlist)",
	RunE:  runMarkets,
}

// orderCmd places a market day order.
var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place a market day order",
	Long: `Place a market order that is valid for the current day.

Example usage:
  paper_dashboard order --symbol AAPL --qty 3 --side buy`,
	RunE: runOrder,
}

func init() {
	orderCmd.Flags().StringVar(&orderSymbol, "symbol", "", "Symbol to trade")
	orderCmd.Flags().StringVar(&orderQty, "qty", "", "Number of shares")
	orderCmd.Flags().StringVar(&orderSide, "side", "buy", "buy or sell")
	orderCmd.MarkFlagRequired("symbol")
	orderCmd.MarkFlagRequired("qty")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		acct      *models.Account
		positions []models.Position
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		acct, err = current.broker.GetAccount(gctx)
		return err
	})
	g.Go(func() (err error) {
		positions, err = current.broker.GetPositions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return errors.New(market.UserMessage(err))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Portfolio value\t$%s\n", acct.PortfolioValue.StringFixed(2))
	fmt.Fprintf(w, "Buying power\t$%s\n", acct.BuyingPower.StringFixed(2))
	fmt.Fprintf(w, "Cash\t$%s\n", acct.Cash.StringFixed(2))
	fmt.Fprintf(w, "Equity\t$%s\n", acct.Equity.StringFixed(2))
	fmt.Fprintln(w)

	if len(positions) == 0 {
		fmt.Fprintln(w, "No open positions")
		return w.Flush()
	}
	fmt.Fprintln(w, "SYMBOL\tQTY\tAVG ENTRY\tCURRENT\tMARKET VALUE\tP/L\tP/L %")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s%%\n",
			p.Symbol,
			p.Qty.String(),
			p.AvgEntryPrice.StringFixed(2),
			p.CurrentPrice.StringFixed(2),
			p.MarketValue.StringFixed(2),
			p.UnrealizedPL.StringFixed(2),
			p.UnrealizedPLPC.Mul(decimal.NewFromInt(100)).StringFixed(2),
		)
	}
	return w.Flush()
}

func runMarkets(cmd *cobra.Command, args []string) error {
	symbols := market.DefaultSymbols
	if len(args) > 0 {
		symbols = make([]string, 0, len(args))
		for _, s := range args {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}

	tickers, err := current.broker.GetMarketData(cmd.Context(), symbols)
	if err != nil {
		return errors.New(market.UserMessage(err))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPRICE\tCHANGE\tCHANGE %")
	for _, s := range symbols {
		fmt.Fprintln(w, formatTicker(s, tickers[s]))
	}
	return w.Flush()
}

// formatTicker renders one tab-separated row. Missing data prints as N/A.
func formatTicker(symbol string, t models.MarketTicker) string {
	price, ok := t.Price()
	if !ok {
		return symbol + "\tN/A\tN/A\tN/A"
	}
	delta, pct, ok := t.Change()
	if !ok {
		return fmt.Sprintf("%s\t$%.2f\tN/A\tN/A", symbol, price)
	}
	return fmt.Sprintf("%s\t$%.2f\t%+.2f\t%+.2f%%", symbol, price, delta, pct)
}

func runOrder(cmd *cobra.Command, args []string) error {
	qty, err := decimal.NewFromString(orderQty)
	if err != nil {
		return fmt.Errorf("invalid qty %q: %w", orderQty, err)
	}
	side := models.Side(strings.ToLower(strings.TrimSpace(orderSide)))

	placed, err := current.broker.PlaceOrder(cmd.Context(), models.NewMarketOrder(orderSymbol, qty, side))
	if err != nil {
		return errors.New(market.UserMessage(err))
	}
	current.notifier.OrderPlaced(cmd.Context(), placed)

	fmt.Printf("Order %s: %s %s %s (%s)\n", placed.ID, strings.ToUpper(string(placed.Side)), qty, placed.Symbol, placed.Status)
	return nil
}
