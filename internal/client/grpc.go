package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/server"
)

// GRPCClient implements NegoClient using the gRPC transport.
type GRPCClient struct {
	conn   *grpc.ClientConn
	token  string
	health healthpb.HealthClient
}

var _ NegoClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a bearer token on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		token:  token,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) withAuth(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// --- Sessions ---

func (c *GRPCClient) GetSession(ctx context.Context, tag string) (*model.SessionRecord, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.withAuth(ctx), server.MethodGetSession, wrapperspb.String(tag), out); err != nil {
		return nil, err
	}
	var rec model.SessionRecord
	if err := structInto(out, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error) {
	fields := map[string]any{}
	if req.Completed != nil {
		fields["completed"] = *req.Completed
	}
	if req.WorkerID != "" {
		fields["worker_id"] = req.WorkerID
	}
	if req.Limit > 0 {
		fields["limit"] = req.Limit
	}
	if req.Offset > 0 {
		fields["offset"] = req.Offset
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("building list request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.withAuth(ctx), server.MethodListSessions, in, out); err != nil {
		return nil, err
	}
	var resp ListSessionsResponse
	if err := structInto(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Health ---

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: server.SessionServiceName})
	if err != nil {
		return "", err
	}
	if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
		return "ok", nil
	}
	return resp.GetStatus().String(), nil
}

// structInto decodes a Struct's JSON form into v.
func structInto(st *structpb.Struct, v any) error {
	data, err := st.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
