package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/nego/internal/model"
)

// scannable is satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanSession scans a single session row. Participants are loaded separately.
func scanSession(row scannable) (*model.SessionRecord, error) {
	var (
		rec      model.SessionRecord
		departed []byte
		actions  []byte
	)
	if err := row.Scan(&rec.Tag, &rec.Completed, &rec.TurnCount, &departed, &actions, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeSessionJSON(&rec, departed, actions); err != nil {
		return nil, err
	}
	return &rec, nil
}

// scanSessionWithTotal scans a row that has a leading total_count column
// followed by the standard session columns. Used by queryListSessions with
// COUNT(*) OVER().
func scanSessionWithTotal(row scannable) (*model.SessionRecord, int, error) {
	var (
		total    int
		rec      model.SessionRecord
		departed []byte
		actions  []byte
	)
	if err := row.Scan(&total, &rec.Tag, &rec.Completed, &rec.TurnCount, &departed, &actions, &rec.CreatedAt); err != nil {
		return nil, 0, err
	}
	if err := decodeSessionJSON(&rec, departed, actions); err != nil {
		return nil, 0, err
	}
	return &rec, total, nil
}

func scanParticipant(row scannable) (string, *model.Participant, error) {
	var (
		tag  string
		data []byte
	)
	if err := row.Scan(&tag, &data); err != nil {
		return "", nil, err
	}
	var p model.Participant
	if err := json.Unmarshal(data, &p); err != nil {
		return "", nil, fmt.Errorf("unmarshal participant: %w", err)
	}
	return tag, &p, nil
}

func decodeSessionJSON(rec *model.SessionRecord, departed, actions []byte) error {
	if len(departed) > 0 {
		if err := json.Unmarshal(departed, &rec.Departed); err != nil {
			return fmt.Errorf("unmarshal departed: %w", err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &rec.Actions); err != nil {
			return fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	return nil
}

// jsonbArray marshals a slice for a JSONB column; nil becomes an empty array.
func jsonbArray[T any](v []T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}
