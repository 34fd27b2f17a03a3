package render

import (
	"sort"

	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/store"
	str "github.com/joss/fedcli/internal/strings"
)

// Audit renders audit-specific output.
type Audit struct {
	*Writer
}

// NewAudit creates an Audit renderer writing to stdout.
func NewAudit() *Audit {
	return &Audit{Writer: Stdout()}
}

// Events renders a list of audit events.
func (a *Audit) Events(events []audit.AuditEvent) {
	if len(events) == 0 {
		a.Empty("No audit events found")
		return
	}

	a.Header("AUDIT LOG (%d events)", len(events))

	for _, e := range events {
		conv := ""
		if e.ConversationID != "" {
			conv = " #" + str.ShortID(e.ConversationID)
		}
		a.Println("%s [%s] %s/%s%s (%dms)",
			StatusIcon(string(e.Status)),
			e.StartedAt.Format("01-02 15:04:05"),
			e.Category,
			e.Operation,
			conv,
			e.DurationMs,
		)
		if e.ErrorMessage != "" {
			a.Nested("%s", str.Truncate(e.ErrorMessage, 70))
		}
	}
}

// Errors renders failed events with their command line.
func (a *Audit) Errors(events []audit.AuditEvent) {
	if len(events) == 0 {
		a.Empty("No errors found")
		return
	}

	a.Header("RECENT ERRORS (%d)", len(events))

	for _, e := range events {
		a.Println("✗ [%s] %s/%s as %s",
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.Category,
			e.Operation,
			e.Role,
		)
		if e.ErrorMessage != "" {
			a.Item("Error: %s", e.ErrorMessage)
		}
		if e.Command != "" {
			a.Item("Command: %s", str.Truncate(e.Command, 60))
		}
		a.Line()
	}
}

// Stats renders audit statistics.
func (a *Audit) Stats(stats store.AuditStats) {
	a.Header("AUDIT STATISTICS")

	a.Item("Total events:   %d", stats.Total)
	a.Item("Success:        %d", stats.Success)
	a.Item("Errors:         %d", stats.Errors)
	if stats.AvgDurationMs > 0 {
		a.Item("Avg duration:   %.0fms", stats.AvgDurationMs)
	}

	if len(stats.ByCategory) > 0 {
		a.Section("BY CATEGORY")
		cats := make([]string, 0, len(stats.ByCategory))
		for c := range stats.ByCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			a.Item("%-12s %d", c+":", stats.ByCategory[c])
		}
	}
}
