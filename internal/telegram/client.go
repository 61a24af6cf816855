package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"paper_dashboard/internal/httpclient"
	"paper_dashboard/internal/models"
)

// DefaultAPIURL is the Telegram Bot API root.
const DefaultAPIURL = "https://api.telegram.org"

// Notifier is told about placed orders. Implementations never fail the caller.
type Notifier interface {
	OrderPlaced(ctx context.Context, order *models.Order)
}

// Nop discards notifications. Used when Telegram credentials are missing.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, *models.Order) {}

// Client sends Markdown messages to one chat.
type Client struct {
	http        *httpclient.Client
	apiURL      string
	token       string
	chatID      string
	maxAttempts int
	log         zerolog.Logger
}

// New returns a Telegram client. apiURL defaults to DefaultAPIURL.
func New(hc *httpclient.Client, apiURL, token, chatID string, maxAttempts int, log zerolog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		http:        hc,
		apiURL:      strings.TrimRight(apiURL, "/"),
		token:       token,
		chatID:      chatID,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Send posts text to the configured chat.
func (c *Client) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "Markdown", // Allows us to use bold/italic in messages
	})
	if err != nil {
		return err
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.token),
		LogURL: c.apiURL + "/bot<redacted>/sendMessage", // the token is a credential
		Header: header,
		Body:   payload,
	}, c.maxAttempts, nil)
}

// OrderPlaced sends a short order summary. Failures are only logged.
func (c *Client) OrderPlaced(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	if err := c.Send(ctx, FormatOrder(order)); err != nil {
		c.log.Warn().Err(err).Str("order_id", order.ID).Msg("telegram notification failed")
	}
}

// FormatOrder renders the notification text for order.
func FormatOrder(order *models.Order) string {
	qty := "?"
	if order.Qty != nil {
		qty = order.Qty.String()
	}
	return fmt.Sprintf("*Order %s*\n%s %s %s (%s)\nID: `%s`",
		strings.ToUpper(order.Status), strings.ToUpper(string(order.Side)), qty, order.Symbol, order.Type, order.ID)
}
