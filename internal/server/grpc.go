package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// SessionServiceName is the fully-qualified gRPC service name.
const SessionServiceName = "negotiation.v1.SessionService"

// Full method names, as clients pass them to grpc.ClientConn.Invoke.
const (
	MethodGetSession   = "/" + SessionServiceName + "/GetSession"
	MethodListSessions = "/" + SessionServiceName + "/ListSessions"
)

// SessionServiceServer is the read-only session API. Requests and responses
// are protobuf well-known types carrying the JSON form of session records.
type SessionServiceServer interface {
	GetSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ SessionServiceServer = (*NegoServer)(nil)

// GetSession returns one session record by tag.
func (s *NegoServer) GetSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	rec, err := s.getSession(ctx, req.GetValue())
	if err != nil {
		return nil, storeError(err, "session")
	}
	st, err := recordToStruct(rec)
	if err != nil {
		return nil, storeError(err, "session")
	}
	return st, nil
}

// ListSessions returns a page of session records, newest first.
func (s *NegoServer) ListSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := filterFromStruct(req)
	if err != nil {
		return nil, storeError(err, "sessions")
	}
	recs, total, err := s.listSessions(ctx, f)
	if err != nil {
		return nil, storeError(err, "sessions")
	}
	st, err := listToStruct(recs, total)
	if err != nil {
		return nil, storeError(err, "sessions")
	}
	return st, nil
}

func getSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).GetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetSession}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).GetSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listSessionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).ListSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListSessions}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).ListSessions(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SessionServiceDesc describes the session service for grpc.Server.RegisterService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSession", Handler: getSessionHandler},
		{MethodName: "ListSessions", Handler: listSessionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "negotiation/v1/session.proto",
}

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the SessionService, health and reflection, and returns the
// server ready to serve.
func NewGRPCServer(srv *NegoServer, authToken string) *grpc.Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(srv.logger),
			LoggingInterceptor(srv.logger),
			AuthInterceptor(authToken),
		),
	)

	gs.RegisterService(&SessionServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(SessionServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	reflection.Register(gs)

	return gs
}
