//go:build integration

package alpaca

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper_dashboard/internal/market"
)

func setupTestProvider(t *testing.T) *Provider {
	key := os.Getenv("TEST_APCA_API_KEY_ID")
	secret := os.Getenv("TEST_APCA_API_SECRET_KEY")
	url := os.Getenv("TEST_APCA_API_BASE_URL")

	if key == "" || secret == "" {
		t.Skip("Skipping integration test: TEST_APCA credentials not set")
	}
	if url == "" {
		url = "https://paper-api.alpaca.markets"
	}

	return NewProvider(Options{
		KeyID:     key,
		SecretKey: secret,
		BaseURL:   url,
		Logger:    zerolog.New(zerolog.NewTestWriter(t)),
	})
}

func TestIntegration_ReadOperations(t *testing.T) {
	provider := setupTestProvider(t)
	ctx := context.Background()

	acct, err := provider.GetAccount(ctx)
	require.NoError(t, err)
	assert.False(t, acct.PortfolioValue.IsNegative())

	_, err = provider.GetPositions(ctx)
	require.NoError(t, err)

	orders, err := provider.GetOrders(ctx, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(orders), market.DefaultOrderLimit)

	bars, err := provider.GetBars(ctx, "AAPL", "")
	require.NoError(t, err)
	assert.NotEmpty(t, bars, "a liquid stock has daily bars in the last 30 days")

	tickers, err := provider.GetMarketData(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Contains(t, tickers, "AAPL")
	assert.NotNil(t, tickers["AAPL"].LatestTrade)
}
