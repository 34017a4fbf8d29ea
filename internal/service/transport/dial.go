package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/oauth"
)

// DialStage describes where channel establishment failed.
type DialStage string

const (
	// DialStageConfigure indicates the client could not be constructed.
	DialStageConfigure DialStage = "configure"
	// DialStageConnect indicates the channel never became ready.
	DialStageConnect DialStage = "connect"
)

// DialError wraps channel establishment failures with a stage indicator.
type DialError struct {
	Stage  DialStage
	Target string
	Err    error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial error"
	}
	return fmt.Sprintf("gRPC %s error for %s: %v", e.Stage, e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DefaultDialOptions returns TLS transport credentials, OAuth2 per-RPC
// credentials backed by tokens, and the OTel client stats handler.
func DefaultDialOptions(tokens oauth2.TokenSource) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
		grpc.WithPerRPCCredentials(oauth.TokenSource{TokenSource: tokens}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Dial creates the long-lived channel and waits until it is ready or
// dialTimeout elapses. The connection is closed on failure.
func Dial(ctx context.Context, target string, dialTimeout time.Duration, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, &DialError{Stage: DialStageConfigure, Target: target, Err: err}
	}

	waitCtx := ctx
	if dialTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}

	if err := waitForReady(waitCtx, conn); err != nil {
		_ = conn.Close()
		return nil, &DialError{Stage: DialStageConnect, Target: target, Err: err}
	}
	return conn, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("channel not ready (last state %s): %w", state, ctx.Err())
		}
	}
}
