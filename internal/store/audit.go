package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditRecord is one persisted audit event.
type AuditRecord struct {
	ID             string
	Category       string
	Operation      string
	Command        string
	Status         string
	ErrorMessage   string
	UserID         string
	Role           string
	ConversationID string
	SessionID      string
	StartedAt      time.Time
	DurationMs     int64
}

// AuditStats aggregates audit events.
type AuditStats struct {
	Total         int
	Success       int
	Errors        int
	AvgDurationMs float64
	ByCategory    map[string]int
}

// auditColumns are the columns a Filter may constrain or order by.
var auditColumns = map[string]bool{
	"category":        true,
	"operation":       true,
	"status":          true,
	"user_id":         true,
	"conversation_id": true,
	"started_at":      true,
	"duration_ms":     true,
}

// SaveAudit inserts rec.
func (c *Cache) SaveAudit(ctx context.Context, rec AuditRecord) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, category, operation, command, status, error_message,
			user_id, role, conversation_id, session_id, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Category, rec.Operation, rec.Command, rec.Status, rec.ErrorMessage,
		rec.UserID, rec.Role, rec.ConversationID, rec.SessionID,
		rec.StartedAt.UTC().Format(timeFormat), rec.DurationMs)
	return err
}

// ListAudit returns audit events matching filter, newest first unless the
// filter orders otherwise. since, when non-zero, drops older events.
func (c *Cache) ListAudit(ctx context.Context, filter Filter, since time.Time) ([]AuditRecord, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []any
	)
	for col, v := range filter.Where {
		if !auditColumns[col] {
			return nil, fmt.Errorf("%w: column %q", ErrInvalidFilter, col)
		}
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}
	if !since.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, since.UTC().Format(timeFormat))
	}

	order := "started_at"
	if filter.OrderBy != "" {
		if !auditColumns[filter.OrderBy] {
			return nil, fmt.Errorf("%w: order by %q", ErrInvalidFilter, filter.OrderBy)
		}
		order = filter.OrderBy
	}
	dir := "ASC"
	if filter.OrderDesc || filter.OrderBy == "" {
		dir = "DESC"
	}

	var b strings.Builder
	b.WriteString(`SELECT id, category, operation, command, status, error_message, user_id, role,
		conversation_id, session_id, started_at, duration_ms FROM audit_events`)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s %s", order, dir)
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := c.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			r                                 AuditRecord
			command, errMsg, user, role, conv sql.NullString
			session                           sql.NullString
			started                           string
		)
		if err := rows.Scan(&r.ID, &r.Category, &r.Operation, &command, &r.Status, &errMsg,
			&user, &role, &conv, &session, &started, &r.DurationMs); err != nil {
			return nil, err
		}
		r.Command, r.ErrorMessage = command.String, errMsg.String
		r.UserID, r.Role, r.ConversationID, r.SessionID = user.String, role.String, conv.String, session.String
		r.StartedAt = parseTime(sql.NullString{String: started, Valid: true})
		out = append(out, r)
	}
	return out, rows.Err()
}

// AuditStats summarizes every stored audit event.
func (c *Cache) AuditStats(ctx context.Context) (AuditStats, error) {
	stats := AuditStats{ByCategory: map[string]int{}}
	if err := c.check(); err != nil {
		return stats, err
	}

	var avg sql.NullFloat64
	err := c.db.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(sum(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		       coalesce(sum(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
		       avg(duration_ms)
		FROM audit_events
	`).Scan(&stats.Total, &stats.Success, &stats.Errors, &avg)
	if err != nil {
		return stats, err
	}
	stats.AvgDurationMs = avg.Float64

	rows, err := c.db.QueryContext(ctx, `SELECT category, count(*) FROM audit_events GROUP BY category`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return stats, err
		}
		stats.ByCategory[cat] = n
	}
	return stats, rows.Err()
}
