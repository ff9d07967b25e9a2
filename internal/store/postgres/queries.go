package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/store"
)

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `id, type, actor_id, channel_id, message_id, message_state, created_at, customer_name, set_date, has_bill, system_size, setter_id`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryAppendEvent(ctx context.Context, db executor, e *model.Event) error {
	row := db.QueryRowContext(ctx, `
		INSERT INTO events (
			type, actor_id, channel_id, message_state,
			customer_name, set_date, has_bill, system_size, setter_id
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
		RETURNING id, created_at`,
		string(e.Type),
		e.ActorID,
		e.ChannelID,
		string(model.MessagePending),
		nullString(e.CustomerName),
		nullTimePtr(e.SetDate),
		e.HasBill,
		nullFloatPtr(e.SystemSize),
		nullString(e.SetterID),
	)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return err
	}
	e.MessageState = model.MessagePending
	return nil
}

func queryAttachMessage(ctx context.Context, db executor, id int64, messageID string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE events
		SET message_id = $2, message_state = $3
		WHERE id = $1`,
		id, messageID, string(model.MessageFinalized),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// queryAbandonMessage only transitions pending rows; a finalized row is left
// alone. Zero rows affected means the event is missing or already settled.
func queryAbandonMessage(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE events
		SET message_state = $2
		WHERE id = $1 AND message_state = $3`,
		id, string(model.MessageOrphaned), string(model.MessagePending),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryGetEvent(ctx context.Context, db executor, id int64) (*model.Event, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func queryListRecent(ctx context.Context, db executor, limit int) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryListAll(ctx context.Context, db executor) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryDeleteEvent(ctx context.Context, db executor, id int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// timeColumn maps a store.TimeField to a concrete column name. The switch is
// a whitelist; anything else falls back to created_at.
func timeColumn(field store.TimeField) string {
	switch field {
	case store.BySetDate:
		return "set_date"
	default:
		return "created_at"
	}
}

// typePlaceholders renders an IN (...) placeholder list for the given types,
// appending their values to args. Placeholders start at $1.
func typePlaceholders(types []model.EventType, args *[]any) string {
	ph := make([]string, len(types))
	for i, t := range types {
		*args = append(*args, string(t))
		ph[i] = fmt.Sprintf("$%d", len(*args))
	}
	return strings.Join(ph, ", ")
}

func queryCountByType(ctx context.Context, db executor, types []model.EventType, field store.TimeField, from, to time.Time) (int, error) {
	var args []any
	in := typePlaceholders(types, &args)
	col := timeColumn(field)
	args = append(args, from, to)
	q := fmt.Sprintf(
		`SELECT COUNT(*) FROM events WHERE type IN (%s) AND %s >= $%d AND %s < $%d`,
		in, col, len(args)-1, col, len(args),
	)

	var n int
	if err := db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func queryTopActors(ctx context.Context, db executor, types []model.EventType, field store.TimeField, from, to time.Time, limit int) ([]model.ActorCount, error) {
	var args []any
	in := typePlaceholders(types, &args)
	col := timeColumn(field)
	args = append(args, from, to, limit)
	// MIN(id) in the tiebreak keeps the leaderboard deterministic: on equal
	// counts the actor who recorded first ranks first.
	q := fmt.Sprintf(`
		SELECT actor_id, COUNT(*) AS n
		FROM events
		WHERE type IN (%s) AND %s >= $%d AND %s < $%d
		GROUP BY actor_id
		ORDER BY n DESC, MIN(id) ASC
		LIMIT $%d`,
		in, col, len(args)-2, col, len(args)-1, len(args),
	)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ActorCount
	for rows.Next() {
		var ac model.ActorCount
		if err := rows.Scan(&ac.ActorID, &ac.Count); err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}
