package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var sessionRowColumns = []string{"tag", "completed", "turn_count", "departed", "actions", "created_at"}

var sessionWithTotalColumns = append([]string{"total_count"}, sessionRowColumns...)

func testRecord(now time.Time) *model.SessionRecord {
	a := model.NewParticipant("a", "W-a", "A-a")
	a.WorkQuality = model.VerdictPass
	b := model.NewParticipant("b", "W-b", "A-b")
	b.WorkQuality = model.VerdictFailR1
	return &model.SessionRecord{
		Tag:       "conversation t_1",
		Completed: true,
		TurnCount: 5,
		Actions: []*model.Action{
			{SenderID: "a", Kind: model.ActionMessage, Text: "hello", At: now},
		},
		Participants: []*model.Participant{a, b},
		CreatedAt:    now,
	}
}

func participantJSON(t *testing.T, p *model.Participant) []byte {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestSaveSession(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := testRecord(now)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(rec.Tag, true, 5, []byte("[]"), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM session_participants WHERE session_tag = \\$1").
		WithArgs(rec.Tag).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO session_participants").
		WithArgs(rec.Tag, 0, "a", "W-a", "A-a", "pass", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO session_participants").
		WithArgs(rec.Tag, 1, "b", "W-b", "A-b", "fail_R1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.SaveSession(context.Background(), rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
}

func TestSaveSession_RollsBackOnParticipantError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()
	rec := testRecord(now)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM session_participants").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO session_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO session_participants").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveSession(context.Background(), rec)
	if err == nil || !strings.Contains(err.Error(), "insert participant b") {
		t.Fatalf("expected participant insert error, got %v", err)
	}
}

func TestSaveSession_BeginError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

	err := s.SaveSession(context.Background(), testRecord(time.Now()))
	if err == nil || !strings.Contains(err.Error(), "begin transaction") {
		t.Fatalf("expected begin error, got %v", err)
	}
}

func TestRunInTransaction_Nested(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()
	rec := testRecord(now)
	rec.Participants = nil

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM session_participants").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.RunInTransaction(context.Background(), func(inner store.Store) error {
			return inner.SaveSession(context.Background(), rec)
		})
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := testRecord(now)
	actions, _ := json.Marshal(want.Actions)

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE tag = \\$1").
		WithArgs(want.Tag).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow(want.Tag, true, 5, []byte(`["b"]`), actions, now))
	mock.ExpectQuery("SELECT session_tag, data FROM session_participants").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"session_tag", "data"}).
			AddRow(want.Tag, participantJSON(t, want.Participants[0])).
			AddRow(want.Tag, participantJSON(t, want.Participants[1])))

	got, err := s.GetSession(context.Background(), want.Tag)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Tag != want.Tag || !got.Completed || got.TurnCount != 5 {
		t.Fatalf("unexpected session header: %+v", got)
	}
	if len(got.Departed) != 1 || got.Departed[0] != "b" {
		t.Errorf("departed = %v, want [b]", got.Departed)
	}
	if len(got.Actions) != 1 || got.Actions[0].Text != "hello" {
		t.Errorf("actions = %+v", got.Actions)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(got.Participants))
	}
	if got.Participants[0].ID != "a" || got.Participants[1].WorkQuality != model.VerdictFailR1 {
		t.Errorf("participants out of order or mangled: %+v, %+v", got.Participants[0], got.Participants[1])
	}
}

func TestGetSession_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE tag = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))

	_, err := s.GetSession(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListSessions_Filtered(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()
	completed := true

	mock.ExpectQuery(`SELECT COUNT\(\*\) OVER\(\) AS total_count, .+ FROM sessions WHERE completed = \$1 AND EXISTS .+worker_id = \$2\) ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(true, "W-a", 2, 4).
		WillReturnRows(sqlmock.NewRows(sessionWithTotalColumns).
			AddRow(7, "t2", true, 9, []byte(`[]`), []byte(`[]`), now).
			AddRow(7, "t1", true, 8, []byte(`[]`), []byte(`[]`), now.Add(-time.Minute)))
	mock.ExpectQuery("SELECT session_tag, data FROM session_participants").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"session_tag", "data"}).
			AddRow("t1", []byte(`{"id":"x","worker_id":"W-a"}`)).
			AddRow("t2", []byte(`{"id":"y","worker_id":"W-a"}`)).
			AddRow("t2", []byte(`{"id":"z","worker_id":"W-z"}`)))

	sessions, total, err := s.ListSessions(context.Background(), model.SessionFilter{
		Completed: &completed,
		WorkerID:  "W-a",
		Limit:     2,
		Offset:    4,
	})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
	if len(sessions) != 2 || sessions[0].Tag != "t2" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if len(sessions[0].Participants) != 2 || len(sessions[1].Participants) != 1 {
		t.Errorf("participants not attached by tag: t2=%d t1=%d",
			len(sessions[0].Participants), len(sessions[1].Participants))
	}
}

func TestListSessions_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT COUNT.+ FROM sessions ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(sessionWithTotalColumns))

	sessions, total, err := s.ListSessions(context.Background(), model.SessionFilter{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 || total != 0 {
		t.Errorf("expected empty result, got %d sessions, total %d", len(sessions), total)
	}
}

func TestListSessions_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("boom"))

	_, _, err := s.ListSessions(context.Background(), model.SessionFilter{})
	if err == nil || !strings.Contains(err.Error(), "list sessions") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestJSONBArray(t *testing.T) {
	got, err := jsonbArray[string](nil)
	if err != nil || string(got) != "[]" {
		t.Errorf("jsonbArray(nil) = %q, %v", got, err)
	}
	got, err = jsonbArray([]string{"a"})
	if err != nil || string(got) != `["a"]` {
		t.Errorf(`jsonbArray([a]) = %q, %v`, got, err)
	}
}
