// Package archive periodically exports every stored session record as JSONL
// to external destinations such as an S3 bucket.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/store"
)

// pageSize bounds each ListSessions call made during an export.
const pageSize = 500

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SessionCount int       `json:"session_count"`
	Completed    int       `json:"completed_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every session in the store as JSONL to w, sorted by tag.
// Complete and incomplete sessions are distinguished by the record type.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	var all []*model.SessionRecord
	for offset := 0; ; offset += pageSize {
		page, total, err := s.ListSessions(ctx, model.SessionFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize || len(all) >= total {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Tag < all[j].Tag
	})

	completed := 0
	for _, rec := range all {
		if rec.Completed {
			completed++
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		SessionCount: len(all),
		Completed:    completed,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, rec := range all {
		typ := "incomplete_session"
		if rec.Completed {
			typ = "session"
		}
		if err := enc.Encode(record{Type: typ, Data: rec}); err != nil {
			return fmt.Errorf("encode session %s: %w", rec.Tag, err)
		}
	}

	return nil
}
