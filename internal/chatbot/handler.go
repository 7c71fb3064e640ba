package chatbot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryptalert/internal/alerting"
	"cryptalert/internal/market"
)

// Handler answers chat commands from the shared snapshot store.
type Handler struct {
	Name    string
	Version string
	Store   *market.Store
	Trend   *market.TrendTracker
	Started time.Time
	Clock   func() time.Time
}

const helpText = `Commands:
/ping - check the bot is alive
/version - show the bot version
/uptime - show how long the bot has been running
/rates - current rates for the watched currencies
/market - current market status
/update - brief market and rates update`

// Reply returns the response to command. ok is false for unknown commands.
func (h *Handler) Reply(command string) (reply string, ok bool) {
	switch strings.ToLower(command) {
	case "ping":
		return "Pong!", true
	case "version":
		return fmt.Sprintf("Bot version: %s", h.Version), true
	case "uptime":
		return "Bot uptime: " + formatUptime(h.now().Sub(h.Started)), true
	case "rates":
		return h.rates(), true
	case "market", "marketstatus", "status":
		snap := h.Store.Current()
		if snap.IsEmpty() {
			return noData, true
		}
		return h.Trend.Status(snap.Market()), true
	case "update", "statusupdate":
		snap := h.Store.Current()
		if snap.IsEmpty() {
			return noData, true
		}
		digest := alerting.NewDigest(h.Trend.Status(snap.Market()), snap)
		return alerting.Render(alerting.NewDigestNotification(h.now(), "Current market status!", digest)), true
	case "help", "start":
		return helpText, true
	default:
		return "", false
	}
}

const noData = "No market data yet, try again shortly."

func (h *Handler) rates() string {
	snap := h.Store.Current()
	if snap.IsEmpty() {
		return noData
	}
	b, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return "Rates are unavailable right now."
	}
	return "Current rates:\n" + string(b)
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// OnlineMessage announces startup.
func (h *Handler) OnlineMessage() string {
	return fmt.Sprintf("%s is online!", h.Name)
}

// OfflineMessage announces shutdown.
func (h *Handler) OfflineMessage() string {
	return fmt.Sprintf("%s is going offline!", h.Name)
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	mins := int(d / time.Minute)
	d -= time.Duration(mins) * time.Minute
	secs := int(d / time.Second)
	return fmt.Sprintf("%d days %d hours %d minutes %d seconds", days, hours, mins, secs)
}
