package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_HidesDetailButKeepsCause(t *testing.T) {
	cause := errors.New("status 500: upstream exploded")
	err := Wrap("get_orders", MsgOrders, cause)

	assert.Equal(t, "Failed to fetch orders. Please try again later.", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, MsgOrders, UserMessage(fmt.Errorf("poll home: %w", err)))
	assert.NoError(t, Wrap("get_orders", MsgOrders, nil))
}

func TestMsgMarketData_IncludesCause(t *testing.T) {
	assert.Equal(t, "Failed to fetch market data: No symbols provided", MsgMarketData(invalid("No symbols provided")))
	assert.Equal(t, "Failed to fetch market data: Unknown error occurred", MsgMarketData(nil))
}

func TestIsValidation_ThroughDomainError(t *testing.T) {
	err := Wrap("get_market_data", MsgMarketData(invalid("No symbols provided")), invalid("No symbols provided"))
	assert.True(t, IsValidation(err))
	assert.False(t, IsValidation(Wrap("get_account", MsgAccount, errors.New("down"))))
}

func TestMsgBars(t *testing.T) {
	assert.Equal(t, "Failed to fetch price history for TSLA. Please try again later.", MsgBars("TSLA"))
}
