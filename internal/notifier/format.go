package notifier

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/Harshitk-cp/chainwatch/internal/service"
)

var severityEmoji = map[domain.Severity]string{
	domain.SeverityLow:      "🟢",
	domain.SeverityMedium:   "🟡",
	domain.SeverityHigh:     "🟠",
	domain.SeverityCritical: "🔴",
}

func SeverityEmoji(s domain.Severity) string {
	if e, ok := severityEmoji[s]; ok {
		return e
	}
	return "⚪"
}

// AlertType is the history category of an event, e.g. "threshold_outgoing_transfer".
func AlertType(ev domain.AlertEvent) string {
	return fmt.Sprintf("%s_%s", ev.Condition.Kind, ev.Condition.Parameter)
}

// FormatMessage renders an alert as Telegram HTML. The timestamp is the
// snapshot time, not the delivery time.
func FormatMessage(ev domain.AlertEvent, agent *domain.Agent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s <b>%s alert</b>\n", SeverityEmoji(ev.Severity), strings.ToUpper(string(ev.Severity)))
	fmt.Fprintf(&b, "<b>Agent:</b> %s\n", html.EscapeString(agent.Name))
	fmt.Fprintf(&b, "<b>Target:</b> %s (%s)\n", html.EscapeString(agent.Plan.Target.Label()), agent.Plan.Target.Chain)
	fmt.Fprintf(&b, "<b>Condition:</b> <code>%s</code>\n", html.EscapeString(ev.Condition.String()))

	switch {
	case ev.Condition.Operator == domain.OpContains:
		fmt.Fprintf(&b, "<b>Matched:</b> <code>%s</code>\n", html.EscapeString(ev.Matched))
	case ev.Mode == domain.ModeDelta:
		fmt.Fprintf(&b, "<b>Change:</b> %s", formatValue(ev.Observed))
		if ev.Previous != nil {
			fmt.Fprintf(&b, " (%s → %s)", formatValue(*ev.Previous), formatValue(ev.Current))
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "<b>Value:</b> %s\n", formatValue(ev.Observed))
	}

	if extra := detailLines(ev.Details); extra != "" {
		b.WriteString(extra)
	}
	fmt.Fprintf(&b, "<i>%s</i>", ev.ObservedAt.UTC().Format(time.RFC1123))
	return b.String()
}

// Keys already rendered above are skipped.
var renderedDetails = map[string]bool{
	"target_key": true,
	"threshold":  true,
	"delta":      true,
}

func detailLines(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		if !renderedDetails[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		var v string
		switch x := details[k].(type) {
		case float64:
			v = formatValue(x)
		default:
			v = fmt.Sprint(x)
		}
		fmt.Fprintf(&b, "%s: %s\n", html.EscapeString(k), html.EscapeString(v))
	}
	return b.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Title is the single-line summary stored with the alert history.
func Title(agent *domain.Agent, ev domain.AlertEvent) string {
	return service.AlertTitle(agent, ev)
}
