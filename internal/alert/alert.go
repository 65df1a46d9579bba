// Package alert delivers deal notifications. Delivery is best-effort;
// a failed send is logged and never fails the scan cycle.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
)

// ChannelDiscord is the channel name recorded in the alert log.
const ChannelDiscord = "discord"

const sendTimeout = 8 * time.Second

// Sender delivers one opportunity notification on a named channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, opp *domain.Opportunity) error
}

// DiscordSender posts opportunities to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
	log        logger.Interface
}

// NewDiscordSender creates a Discord webhook sender.
func NewDiscordSender(webhookURL string, log logger.Interface) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: sendTimeout},
		log:        log.WithComponent("discord"),
	}
}

func (s *DiscordSender) Channel() string { return ChannelDiscord }

// Send posts the opportunity as a webhook message.
func (s *DiscordSender) Send(ctx context.Context, opp *domain.Opportunity) error {
	payload := map[string]string{"content": formatMessage(opp)}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func formatMessage(opp *domain.Opportunity) string {
	var b strings.Builder
	switch opp.Decision {
	case domain.DecisionDeal:
		b.WriteString("**Deal found**")
	default:
		b.WriteString("**Possible deal**")
	}
	fmt.Fprintf(&b, " [%s] %s\n", opp.TargetName, opp.Title)
	fmt.Fprintf(&b, "Buy £%.2f → est. resale £%.2f | profit £%.2f | ROI %.0f%% | confidence %.2f\n",
		opp.TotalBuyGBP, opp.ResaleEstGBP, opp.ExpectedProfitGBP, opp.ROI*100, opp.Confidence)
	if safe := SafeExternalURL(opp.URL); safe != "" {
		b.WriteString(safe)
	}
	return b.String()
}

// SafeExternalURL validates a listing URL before it is embedded in an
// outbound message. Anything that is not plain http(s) with a host is
// dropped rather than forwarded.
func SafeExternalURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" || parsed.User != nil {
		return ""
	}
	return parsed.String()
}
