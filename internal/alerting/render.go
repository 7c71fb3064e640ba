package alerting

import (
	"fmt"
	"strings"
)

// Render formats a notification as plain chat text.
func Render(note Notification) string {
	var b strings.Builder
	if note.Title != "" {
		b.WriteString(note.Title)
		b.WriteString("\n")
	}

	switch note.Kind {
	case KindAlert:
		short := WindowLabel(note.ShortWindow)
		long := WindowLabel(note.LongWindow)
		for _, a := range note.Alerts {
			if a.Short.Triggered {
				fmt.Fprintf(&b, "%s: %s in the past %s!\n", a.Asset, a.Short.Message, short)
			}
			if a.Long.Triggered {
				fmt.Fprintf(&b, "%s: %s in the past %s!\n", a.Asset, a.Long.Message, long)
			}
		}
	case KindDigest:
		if note.Digest == nil {
			break
		}
		b.WriteString(note.Digest.Status)
		b.WriteString("\n")
		for _, line := range note.Digest.Lines {
			fmt.Fprintf(&b, "%s  Buy: %s  Sell: %s  %%: %s\n",
				line.Asset, line.Quote.Buy.String(), line.Quote.Sell.String(), line.Quote.ChangePercent.String())
		}
	default:
		b.WriteString(note.Text)
	}

	return strings.TrimRight(b.String(), "\n")
}
