package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/nego/internal/model"
)

// sessionColumns is the column list used for SELECT statements on the sessions table.
const sessionColumns = `tag, completed, turn_count, departed, actions, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querySaveSession(ctx context.Context, db executor, rec *model.SessionRecord) error {
	departed, err := jsonbArray(rec.Departed)
	if err != nil {
		return fmt.Errorf("marshal departed: %w", err)
	}
	actions, err := jsonbArray(rec.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (tag, completed, turn_count, departed, actions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tag) DO UPDATE SET
			completed = EXCLUDED.completed,
			turn_count = EXCLUDED.turn_count,
			departed = EXCLUDED.departed,
			actions = EXCLUDED.actions`,
		rec.Tag,
		rec.Completed,
		rec.TurnCount,
		departed,
		actions,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", rec.Tag, err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM session_participants WHERE session_tag = $1`, rec.Tag); err != nil {
		return fmt.Errorf("clear participants of %s: %w", rec.Tag, err)
	}

	for i, p := range rec.Participants {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal participant %s: %w", p.ID, err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO session_participants (
				session_tag, position, participant_id, worker_id, assignment_id, work_quality, data
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.Tag, i, p.ID, p.WorkerID, p.AssignmentID, string(p.WorkQuality), data,
		)
		if err != nil {
			return fmt.Errorf("insert participant %s: %w", p.ID, err)
		}
	}
	return nil
}

func queryGetSession(ctx context.Context, db executor, tag string) (*model.SessionRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE tag = $1`, tag)
	rec, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	if err := attachParticipants(ctx, db, []*model.SessionRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func queryListSessions(ctx context.Context, db executor, filter model.SessionFilter) ([]*model.SessionRecord, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Completed != nil {
		whereClauses = append(whereClauses, "completed = "+nextArg())
		args = append(args, *filter.Completed)
	}

	if filter.WorkerID != "" {
		whereClauses = append(whereClauses,
			"EXISTS (SELECT 1 FROM session_participants sp WHERE sp.session_tag = sessions.tag AND sp.worker_id = "+nextArg()+")")
		args = append(args, filter.WorkerID)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + sessionColumns + " FROM sessions" + whereSQL + " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var sessions []*model.SessionRecord
	var total int
	for rows.Next() {
		rec, t, err := scanSessionWithTotal(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan sessions: %w", err)
		}
		total = t
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("scan sessions: %w", err)
	}
	rows.Close()

	if err := attachParticipants(ctx, db, sessions); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// attachParticipants loads the participants of every given session in one
// query and assigns them in seat order.
func attachParticipants(ctx context.Context, db executor, sessions []*model.SessionRecord) error {
	if len(sessions) == 0 {
		return nil
	}
	byTag := make(map[string]*model.SessionRecord, len(sessions))
	tags := make([]string, len(sessions))
	for i, rec := range sessions {
		byTag[rec.Tag] = rec
		tags[i] = rec.Tag
	}

	rows, err := db.QueryContext(ctx, `
		SELECT session_tag, data FROM session_participants
		WHERE session_tag = ANY($1)
		ORDER BY session_tag, position`, pq.Array(tags))
	if err != nil {
		return fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		tag, p, err := scanParticipant(rows)
		if err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if rec, ok := byTag[tag]; ok {
			rec.Participants = append(rec.Participants, p)
		}
	}
	return rows.Err()
}
