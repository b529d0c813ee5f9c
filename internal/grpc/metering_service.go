package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

// MeteringServiceName is the fully qualified gRPC service name
const MeteringServiceName = "metering.v1.MeteringService"

const (
	authorizeMethod = "/" + MeteringServiceName + "/Authorize"
	reserveMethod   = "/" + MeteringServiceName + "/Reserve"
	commitMethod    = "/" + MeteringServiceName + "/Commit"
)

// MeteringServiceServer is the worker-facing metering API (Worker -> Go).
// Requests and responses are protobuf Structs:
//
//	Authorize/Reserve: {user_id, limit, amount, file_id?, action?, extra?}
//	Commit:            {user_id, kind, amount, file_id?, action?, extra?}
type MeteringServiceServer interface {
	Authorize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reserve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Commit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// MeteringServiceDesc describes the metering service for grpc.Server registration
var MeteringServiceDesc = grpc.ServiceDesc{
	ServiceName: MeteringServiceName,
	HandlerType: (*MeteringServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Authorize", Handler: unaryHandler(authorizeMethod, MeteringServiceServer.Authorize)},
		{MethodName: "Reserve", Handler: unaryHandler(reserveMethod, MeteringServiceServer.Reserve)},
		{MethodName: "Commit", Handler: unaryHandler(commitMethod, MeteringServiceServer.Commit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "metering/v1/metering.proto",
}

func unaryHandler(
	fullMethod string,
	call func(MeteringServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MeteringServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MeteringServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterMeteringServer registers the metering service and a SERVING health status
func RegisterMeteringServer(s *grpc.Server, srv MeteringServiceServer) *health.Server {
	s.RegisterService(&MeteringServiceDesc, srv)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(MeteringServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)
	return healthServer
}

// MeteringServer implements MeteringServiceServer on top of the entitlement service
type MeteringServer struct {
	entitlements service.EntitlementService
	logger       *slog.Logger
}

// NewMeteringServer creates a new metering server instance
func NewMeteringServer(entitlements service.EntitlementService, logger *slog.Logger) *MeteringServer {
	return &MeteringServer{
		entitlements: entitlements,
		logger:       logger,
	}
}

// Authorize answers whether the user may consume the amount without consuming it
func (s *MeteringServer) Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDField(req)
	if err != nil {
		return nil, err
	}
	kind, ok := config.ParseLimitKind(stringField(req, "limit"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown limit %q", stringField(req, "limit"))
	}

	result, err := s.entitlements.Authorize(ctx, userID, kind, int64Field(req, "amount"))
	if err != nil {
		return nil, s.toStatus("Authorize", userID, err)
	}
	return checkResultStruct(result)
}

// Reserve consumes quota atomically. A denied reservation is a regular response with allowed=false.
func (s *MeteringServer) Reserve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDField(req)
	if err != nil {
		return nil, err
	}
	kind, ok := config.ParseLimitKind(stringField(req, "limit"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown limit %q", stringField(req, "limit"))
	}

	result, err := s.entitlements.Reserve(ctx, userID, kind, int64Field(req, "amount"), metadataFields(req))
	if err != nil && !(errors.Is(err, service.ErrQuotaExceeded) && result != nil) {
		return nil, s.toStatus("Reserve", userID, err)
	}
	return checkResultStruct(result)
}

// Commit records consumed usage
func (s *MeteringServer) Commit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDField(req)
	if err != nil {
		return nil, err
	}
	kind, ok := models.ParseUsageKind(stringField(req, "kind"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown usage kind %q", stringField(req, "kind"))
	}

	if err := s.entitlements.Commit(ctx, userID, kind, int64Field(req, "amount"), metadataFields(req)); err != nil {
		return nil, s.toStatus("Commit", userID, err)
	}
	return structpb.NewStruct(map[string]interface{}{"recorded": true})
}

// toStatus maps engine errors onto gRPC status codes
func (s *MeteringServer) toStatus(method string, userID uuid.UUID, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, service.ErrUnknownPlan):
		code = codes.InvalidArgument
	case errors.Is(err, service.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, service.ErrQuotaExceeded):
		code = codes.ResourceExhausted
	case errors.Is(err, service.ErrStoreUnavailable):
		code = codes.Unavailable
	}

	if code == codes.Internal || code == codes.Unavailable {
		s.logger.Error("❌ [MeteringService] "+method+" failed", "user_id", userID, "error", err)
	} else {
		s.logger.Debug("⚠️ [MeteringService] "+method+" rejected", "user_id", userID, "error", err)
	}
	return status.Error(code, err.Error())
}

// ==================== Struct Helpers ====================

func userIDField(req *structpb.Struct) (uuid.UUID, error) {
	raw := stringField(req, "user_id")
	userID, err := uuid.Parse(raw)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid user_id %q", raw)
	}
	return userID, nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func int64Field(req *structpb.Struct, key string) int64 {
	return int64(req.GetFields()[key].GetNumberValue())
}

func metadataFields(req *structpb.Struct) service.UsageMetadata {
	meta := service.UsageMetadata{
		FileID: stringField(req, "file_id"),
		Action: stringField(req, "action"),
	}
	if extra := req.GetFields()["extra"].GetStructValue(); extra != nil {
		meta.Extra = extra.AsMap()
	}
	return meta
}

func checkResultStruct(result *service.UsageCheckResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"allowed":   result.Allowed,
		"remaining": result.Remaining,
		"current":   result.Current,
		"limit":     result.Limit,
	})
}
