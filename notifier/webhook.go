package notifier

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ipsguard/engine"
	"ipsguard/geo"
	"ipsguard/logger"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

type WebhookMessage struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   string    `json:"severity"`
	Identifier string    `json:"identifier"`
	Score      float64   `json:"score"`
	Rules      []string  `json:"rules"`
	Country    string    `json:"country,omitempty"`
}

// Webhook posts ban alerts to a chat or incident endpoint. Alerts beyond
// the limiter's budget are dropped and counted rather than queued.
type Webhook struct {
	URL     string
	Client  *http.Client
	Geo     *geo.Locator
	limiter *rate.Limiter
}

func NewWebhook(url string, perMinute int, locator *geo.Locator) *Webhook {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Webhook{
		URL:     url,
		Client:  &http.Client{Timeout: 5 * time.Second},
		Geo:     locator,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// OnBan is registered as an engine ban subscriber.
func (wh *Webhook) OnBan(ev engine.BanEvent) {
	if wh == nil || wh.URL == "" {
		return
	}
	if !wh.limiter.Allow() {
		DroppedAlerts.Inc()
		logger.Warn("Webhook alert dropped: rate limited", "identifier", ev.Identifier)
		return
	}

	msg := WebhookMessage{
		Text:       fmt.Sprintf("[ipsguard] %s banned with score %.2f (%s)", ev.Identifier, ev.Score, strings.Join(ev.Rules, ", ")),
		Timestamp:  ev.Timestamp,
		Severity:   severity(ev.Score),
		Identifier: ev.Identifier,
		Score:      ev.Score,
		Rules:      ev.Rules,
		Country:    wh.Geo.Country(ev.Identifier),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode webhook alert", "err", err)
		return
	}

	// async so the request path never waits on the endpoint
	go wh.post(data)
}

func (wh *Webhook) post(data []byte) {
	resp, err := wh.Client.Post(wh.URL, "application/json", bytes.NewReader(data))
	if err != nil {
		logger.Error("Failed to send webhook alert", "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		logger.Warn("Webhook returned non-OK status", "status", resp.Status)
	}
}

func severity(score float64) string {
	switch {
	case score >= 20:
		return "critical"
	case score >= 15:
		return "high"
	default:
		return "medium"
	}
}
