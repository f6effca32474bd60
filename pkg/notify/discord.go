package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sancholibre/kalshi-bot/pkg/models"
)

const (
	notifyTimeout = 5 * time.Second
	maxAlertLen   = 1800
)

// Discord posts alerts and trade events to a webhook. Delivery is
// best-effort: failures are logged and swallowed, never escalated, and no
// response body is consumed. An empty webhook URL disables everything.
type Discord struct {
	webhookURL string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewDiscord(webhookURL string, logger *logrus.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: notifyTimeout},
		logger:     logger,
	}
}

// Enabled reports whether a webhook is configured.
func (d *Discord) Enabled() bool {
	return d.webhookURL != ""
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Timestamp string       `json:"timestamp"`
}

// Alert sends a plain-text message, truncated to the webhook's limit.
func (d *Discord) Alert(ctx context.Context, message string) {
	if !d.Enabled() {
		return
	}
	if len(message) > maxAlertLen {
		message = message[:maxAlertLen]
	}
	payload := map[string]string{
		"content": "**Kalshi Bot**\n```\n" + message + "\n```",
	}
	d.post(ctx, payload)
}

// Trade sends a structured trade event. Action "buy" marks an executed
// order, anything else an observed opportunity.
func (d *Discord) Trade(ctx context.Context, action string, opp models.Opportunity, record models.TradeRecord) {
	if !d.Enabled() {
		return
	}

	title := "Opportunity Found"
	color := 0xffaa00
	if action == "buy" {
		title = "Trade Executed"
		color = 0x00ff00
	}

	payload := map[string]interface{}{
		"embeds": []embed{{
			Title: title,
			Color: color,
			Fields: []embedField{
				{Name: "Ticker", Value: opp.Ticker, Inline: true},
				{Name: "Side", Value: opp.Side.Display(), Inline: true},
				{Name: "Price", Value: fmt.Sprintf("%d¢", record.Price), Inline: true},
				{Name: "Quantity", Value: fmt.Sprintf("%d", record.Quantity), Inline: true},
				{Name: "Potential Profit", Value: fmt.Sprintf("$%.2f", float64(record.ProfitCents)/100), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.post(ctx, payload)
}

func (d *Discord) post(ctx context.Context, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithError(err).Warn("Discord payload marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		d.logger.WithError(err).Warn("Discord request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.WithError(err).Warn("Discord delivery failed")
		return
	}
	resp.Body.Close()
}
