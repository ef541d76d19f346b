package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/calchub/auth-service/internal/adapters/memory"
	"github.com/calchub/auth-service/internal/adapters/security"
	"github.com/calchub/auth-service/internal/application"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestService(t *testing.T) (*application.Service, *memory.Store) {
	t.Helper()
	signer, err := security.NewJWTSigner("grpc-test-secret-0123456789abcdef")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	store := memory.NewStore()
	svc := application.NewService(application.Dependencies{
		Accounts:      store,
		RefreshTokens: store,
		Recovery:      store,
		Audit:         store,
		Outbox:        store,
		CSRF:          memory.NewCSRFStore(0),
		RateLimiter:   memory.NewRateLimiter(),
		Hasher:        security.NewBcryptHasher(bcrypt.MinCost),
		TokenSigner:   signer,
		Digester:      security.NewHMACDigester("grpc-refresh-secret"),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, store
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func TestValidateTokenContract(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newTestService(t)
	res, err := svc.Register(ctx, application.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Password: "Corr3ct-Horse!",
	}, application.ClientInfo{IPAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	server := NewAuthInternalServer(svc)
	resp, err := server.ValidateToken(ctx, mustStruct(t, map[string]any{"token": res.AccessToken}))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		t.Fatalf("expected valid token")
	}
	if fields["account_id"].GetStringValue() != res.Account.AccountID.String() || fields["email"].GetStringValue() != "grace@example.com" {
		t.Fatalf("unexpected identity: %v", fields)
	}
	if _, err := time.Parse(time.RFC3339, fields["expires_at"].GetStringValue()); err != nil {
		t.Fatalf("expires_at not RFC 3339: %v", err)
	}

	if err := store.SetActive(res.Account.AccountID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = server.ValidateToken(ctx, mustStruct(t, map[string]any{"token": res.AccessToken}))
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != "ACCOUNT_DEACTIVATED" {
		t.Fatalf("expected unauthenticated ACCOUNT_DEACTIVATED, got %v", err)
	}
}

func TestValidateTokenRejectsMissingAndForgedTokens(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	server := NewAuthInternalServer(svc)

	_, err := server.ValidateToken(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	_, err = server.ValidateToken(context.Background(), mustStruct(t, map[string]any{"token": "forged"}))
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != "TOKEN_INVALID" {
		t.Fatalf("expected unauthenticated TOKEN_INVALID, got %v", err)
	}
}

func TestGetAccountContract(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)
	res, err := svc.Register(ctx, application.RegisterRequest{
		FullName: "Alan Turing",
		Email:    "alan@example.com",
		Password: "Corr3ct-Horse!",
	}, application.ClientInfo{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	server := NewAuthInternalServer(svc)

	resp, err := server.GetAccount(ctx, mustStruct(t, map[string]any{"account_id": res.Account.AccountID.String()}))
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if resp.GetFields()["full_name"].GetStringValue() != "Alan Turing" {
		t.Fatalf("unexpected account: %v", resp.GetFields())
	}

	_, err = server.GetAccount(ctx, mustStruct(t, map[string]any{"account_id": "nope"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	_, err = server.GetAccount(ctx, mustStruct(t, map[string]any{"account_id": uuid.NewString()}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisteredServiceOverTheWire(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(slog.New(slog.NewTextHandler(io.Discard, nil)))))
	Register(server, NewAuthInternalServer(svc))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := &structpb.Struct{}
	err = conn.Invoke(ctx, "/"+serviceName+"/ValidateToken", mustStruct(t, map[string]any{"token": "forged"}), out)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated over the wire, got %v", err)
	}
}
