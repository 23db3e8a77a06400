package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/nego/internal/model"
)

// recordToStruct converts a session record to a protobuf Struct carrying the
// record's JSON form.
func recordToStruct(rec *model.SessionRecord) (*structpb.Struct, error) {
	if rec == nil {
		return nil, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal session %s: %w", rec.Tag, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", rec.Tag, err)
	}
	return structpb.NewStruct(m)
}

// listToStruct builds a list response: {"sessions": [...], "total": n}.
func listToStruct(recs []*model.SessionRecord, total int) (*structpb.Struct, error) {
	if recs == nil {
		recs = []*model.SessionRecord{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("marshal sessions: %w", err)
	}
	var list []any
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return structpb.NewStruct(map[string]any{"sessions": list, "total": total})
}

// filterFromStruct reads a list request. Recognised fields: completed (bool),
// worker_id (string), limit and offset (numbers).
func filterFromStruct(req *structpb.Struct) (model.SessionFilter, error) {
	var f model.SessionFilter
	for k, v := range req.GetFields() {
		switch k {
		case "completed":
			b, ok := v.GetKind().(*structpb.Value_BoolValue)
			if !ok {
				return f, inputError("completed must be a boolean")
			}
			f.Completed = &b.BoolValue
		case "worker_id":
			s, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return f, inputError("worker_id must be a string")
			}
			f.WorkerID = s.StringValue
		case "limit", "offset":
			n, ok := v.GetKind().(*structpb.Value_NumberValue)
			if !ok || n.NumberValue != float64(int(n.NumberValue)) {
				return f, inputError(k + " must be an integer")
			}
			if k == "limit" {
				f.Limit = int(n.NumberValue)
			} else {
				f.Offset = int(n.NumberValue)
			}
		default:
			return f, inputError(fmt.Sprintf("unknown field %q", k))
		}
	}
	return f, nil
}

// storeError maps store-layer errors to appropriate gRPC status codes.
func storeError(err error, entity string) error {
	if err == nil {
		return nil
	}
	var ie inputError
	if errors.As(err, &ie) {
		return status.Error(codes.InvalidArgument, ie.Error())
	}
	if errors.Is(err, sql.ErrNoRows) {
		return status.Errorf(codes.NotFound, "%s not found", entity)
	}
	return status.Errorf(codes.Internal, "failed to get %s: %v", entity, err)
}
