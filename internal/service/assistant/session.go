package assistant

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
	"google.golang.org/grpc"

	assistantmodel "github.com/zhouzirui/ga-webserver/backend/internal/model/assistant"
)

var tracer = otel.Tracer("github.com/zhouzirui/ga-webserver/backend/internal/service/assistant")

// Session is the single conversation with the assistant for this process.
//
// It owns the continuation token (conversation state) returned by the
// upstream service and feeds it back on the next call. Exchanges are
// serialised: mu is held from building the request until the response
// stream is drained, so two callers never race on the token.
type Session struct {
	cfg    assistantmodel.SessionConfig
	client embedded.EmbeddedAssistantClient
	closer io.Closer

	mu                sync.Mutex
	conversationState []byte
}

// NewSession binds a session to an established channel. If conn is an
// io.Closer (as *grpc.ClientConn is), Close releases it.
func NewSession(cfg assistantmodel.SessionConfig, conn grpc.ClientConnInterface) *Session {
	s := &Session{
		cfg:    cfg,
		client: embedded.NewEmbeddedAssistantClient(conn),
	}
	if closer, ok := conn.(io.Closer); ok {
		s.closer = closer
	}
	return s
}

// Config returns the immutable session identity.
func (s *Session) Config() assistantmodel.SessionConfig {
	return s.cfg
}

// ConversationState returns a copy of the stored continuation token.
func (s *Session) ConversationState() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.conversationState)
}

// Assist sends textQuery as one exchange and returns the last display text
// received. textQuery is opaque and passed through verbatim.
//
// On failure the returned error is an *ExchangeError; continuation tokens
// already received in the failed stream stay applied.
func (s *Session) Assist(ctx context.Context, textQuery string) (assistantmodel.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "assistant.Assist", trace.WithAttributes(
		attribute.String("assistant.device_id", s.cfg.DeviceID),
		attribute.String("assistant.language_code", s.cfg.LanguageCode),
		attribute.Int("assistant.query_length", len(textQuery)),
		attribute.Bool("assistant.new_conversation", len(s.conversationState) == 0),
	))
	defer span.End()

	start := time.Now()
	result, err := s.exchange(ctx, textQuery)
	elapsed := time.Since(start)
	observeExchange(err, elapsed, len(s.conversationState))

	span.SetAttributes(
		attribute.Int("assistant.responses", result.Responses),
		attribute.Bool("assistant.has_display_text", result.HasDisplayText),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, CodeOf(err).String())
		log.Debug().Err(err).Int("responses", result.Responses).Dur("elapsed", elapsed).Msg("assistant exchange failed")
		return result, err
	}

	log.Debug().
		Int("responses", result.Responses).
		Bool("has_display_text", result.HasDisplayText).
		Int("conversation_state_bytes", len(result.ConversationState)).
		Dur("elapsed", elapsed).
		Msg("assistant exchange completed")
	return result, nil
}

// exchange opens a stream, sends one envelope and drains the replies. Caller holds s.mu.
func (s *Session) exchange(ctx context.Context, textQuery string) (assistantmodel.Result, error) {
	var result assistantmodel.Result

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	req := s.buildRequest(textQuery)

	stream, err := s.client.Assist(ctx)
	if err != nil {
		return result, newExchangeError(ctx, "open", err)
	}

	// io.EOF from Send means the stream already failed; the status surfaces on Recv.
	if err := stream.Send(req); err != nil && !errors.Is(err, io.EOF) {
		return result, newExchangeError(ctx, "send", err)
	}
	if err := stream.CloseSend(); err != nil {
		return result, newExchangeError(ctx, "send", err)
	}

	for resp, err := range responses(stream) {
		if err != nil {
			result.ConversationState = bytes.Clone(s.conversationState)
			return result, newExchangeError(ctx, "receive", err)
		}

		result.Responses++
		out := resp.GetDialogStateOut()
		if state := out.GetConversationState(); len(state) > 0 {
			s.conversationState = bytes.Clone(state)
		}
		if text := out.GetSupplementalDisplayText(); text != "" {
			result.DisplayText = text
			result.HasDisplayText = true
		}
	}

	result.ConversationState = bytes.Clone(s.conversationState)
	return result, nil
}

// Close releases the underlying channel, if the session owns one.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
