// Package grpc exposes token validation and account lookup to other internal
// services. Messages are structpb.Struct so no generated stubs are needed.
package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "calchub.auth.v1.AuthInternalService"

type AuthInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type AuthInternalServer struct {
	service *application.Service
}

func NewAuthInternalServer(service *application.Service) *AuthInternalServer {
	return &AuthInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc AuthInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AuthInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler:    unaryHandler("ValidateToken", svc.ValidateToken),
			},
			{
				MethodName: "GetAccount",
				Handler:    unaryHandler("GetAccount", svc.GetAccount),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "calchub/auth/v1/auth_internal.proto",
	}, svc)
}

// ValidateToken rejects expired or forged tokens and tokens of inactive
// accounts with Unauthenticated; the message carries the reason code.
func (s *AuthInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	account, claims, err := s.service.ValidateAccessToken(ctx, token)
	if err != nil {
		reason, known := invalidReason(err)
		if !known {
			return nil, status.Error(codes.Internal, "validate token failed")
		}
		return nil, status.Error(codes.Unauthenticated, reason)
	}

	return newStruct(map[string]any{
		"valid":          true,
		"account_id":     account.AccountID.String(),
		"email":          account.Email,
		"role":           account.Role,
		"email_verified": account.EmailVerified,
		"expires_at":     claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *AuthInternalServer) GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := uuid.Parse(stringField(req, "account_id"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "account_id must be a UUID")
	}

	view, err := s.service.Me(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			return nil, status.Error(codes.NotFound, "account not found")
		}
		return nil, status.Error(codes.Internal, "get account failed")
	}
	fields := map[string]any{
		"account_id":     view.ID.String(),
		"full_name":      view.FullName,
		"email":          view.Email,
		"role":           view.Role,
		"email_verified": view.EmailVerified,
		"created_at":     view.CreatedAt.UTC().Format(time.RFC3339),
	}
	if view.LastLoginAt != nil {
		fields["last_login_at"] = view.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return newStruct(fields)
}

func invalidReason(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "TOKEN_EXPIRED", true
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrUnauthenticated):
		return "TOKEN_INVALID", true
	case errors.Is(err, domain.ErrAccountDeactivated):
		return "ACCOUNT_DEACTIVATED", true
	default:
		return "", false
	}
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func unaryHandler(method string, call func(context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	logger = logger.With("module", "grpc", "layer", "adapter")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []any{
			"operation", "grpc_request",
			"method", info.FullMethod,
			"status_code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch code {
		case codes.OK:
			logger.InfoContext(ctx, "grpc request completed", append(fields, "outcome", "success")...)
		case codes.Internal, codes.Unknown:
			logger.ErrorContext(ctx, "grpc request completed", append(fields, "outcome", "failure", "error", err)...)
		default:
			logger.WarnContext(ctx, "grpc request completed", append(fields, "outcome", "failure")...)
		}
		return resp, err
	}
}
