package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"cryptalert/internal/market"
	"cryptalert/internal/threshold"
)

// Kind classifies a notification.
type Kind string

const (
	KindAlert  Kind = "alert"
	KindDigest Kind = "digest"
	KindStatus Kind = "status"
)

// Default titles mirror the chat wording users already know.
const (
	AlertTitle  = "Short term update!"
	DigestTitle = "Status update!"
)

// AssetAlert carries both window comparisons for one asset. At least one is triggered.
type AssetAlert struct {
	Asset string
	Short threshold.Result
	Long  threshold.Result
}

// Triggered reports whether either window crossed its threshold.
func (a AssetAlert) Triggered() bool {
	return a.Short.Triggered || a.Long.Triggered
}

// DigestLine is one asset row of a periodic digest.
type DigestLine struct {
	Asset string
	Quote market.Quote
}

// Digest summarises the market trend and every watched asset.
type Digest struct {
	Status string
	Lines  []DigestLine
}

// NewDigest builds a digest from a snapshot in display order.
func NewDigest(status string, snap *market.Snapshot) *Digest {
	d := &Digest{Status: status}
	for _, asset := range snap.Assets() {
		q, _ := snap.Quote(asset)
		d.Lines = append(d.Lines, DigestLine{Asset: asset, Quote: q})
	}
	return d
}

// Notification is one outbound message.
type Notification struct {
	ID        uuid.UUID
	Kind      Kind
	CreatedAt time.Time
	Title     string

	Alerts      []AssetAlert
	ShortWindow time.Duration
	LongWindow  time.Duration

	Digest *Digest
	Text   string
}

// NewAlertNotification aggregates one tick's alerts.
func NewAlertNotification(batch uuid.UUID, at time.Time, alerts []AssetAlert, shortWindow, longWindow time.Duration) Notification {
	return Notification{
		ID:          batch,
		Kind:        KindAlert,
		CreatedAt:   at,
		Title:       AlertTitle,
		Alerts:      alerts,
		ShortWindow: shortWindow,
		LongWindow:  longWindow,
	}
}

// NewDigestNotification wraps a digest.
func NewDigestNotification(at time.Time, title string, digest *Digest) Notification {
	if title == "" {
		title = DigestTitle
	}
	return Notification{
		ID:        uuid.New(),
		Kind:      KindDigest,
		CreatedAt: at,
		Title:     title,
		Digest:    digest,
	}
}

// NewStatusNotification wraps free text such as online announcements.
func NewStatusNotification(at time.Time, text string) Notification {
	return Notification{
		ID:        uuid.New(),
		Kind:      KindStatus,
		CreatedAt: at,
		Text:      text,
	}
}

// WindowLabel words a comparison window: "15 sec", "minute", "5 min".
func WindowLabel(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "minute"
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d min", int(d/time.Minute))
	default:
		return fmt.Sprintf("%s sec", trimFloat(d.Seconds()))
	}
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
