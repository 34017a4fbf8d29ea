package assistant

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	assistantmodel "github.com/zhouzirui/ga-webserver/backend/internal/model/assistant"
)

// fakeAssistant plays back one scripted response stream per call.
type fakeAssistant struct {
	embedded.UnimplementedEmbeddedAssistantServer

	mu       sync.Mutex
	requests []*embedded.AssistRequest
	scripts  [][]*embedded.AssistResponse
	calls    int

	// hang keeps the stream open after the script until the client gives up.
	hang bool
	// fail is returned after the script is sent.
	fail error
	// delay is slept before responding, used to widen race windows.
	delay time.Duration

	inflight    int32
	maxInflight int32
}

func (f *fakeAssistant) Assist(stream embedded.EmbeddedAssistant_AssistServer) error {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		current := atomic.LoadInt32(&f.maxInflight)
		if n <= current || atomic.CompareAndSwapInt32(&f.maxInflight, current, n) {
			break
		}
	}

	req, err := stream.Recv()
	if err != nil {
		return err
	}
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		return status.Error(codes.InvalidArgument, "expected exactly one request")
	}

	f.mu.Lock()
	f.requests = append(f.requests, proto.Clone(req).(*embedded.AssistRequest))
	var script []*embedded.AssistResponse
	if f.calls < len(f.scripts) {
		script = f.scripts[f.calls]
	}
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	for _, resp := range script {
		if err := stream.Send(resp); err != nil {
			return err
		}
	}

	if f.hang {
		<-stream.Context().Done()
		return stream.Context().Err()
	}
	return f.fail
}

func (f *fakeAssistant) request(i int) *embedded.AssistRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func reply(state, text string) *embedded.AssistResponse {
	return &embedded.AssistResponse{
		DialogStateOut: &embedded.DialogStateOut{
			ConversationState:       []byte(state),
			SupplementalDisplayText: text,
		},
	}
}

func testConfig() assistantmodel.SessionConfig {
	return assistantmodel.SessionConfig{
		LanguageCode:  "en-US",
		DeviceModelID: "HA_GA",
		DeviceID:      "HA_GA_TEXT_SERVER",
		Deadline:      5 * time.Second,
	}
}

func newTestSession(t *testing.T, fake *fakeAssistant, cfg assistantmodel.SessionConfig) *Session {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	embedded.RegisterEmbeddedAssistantServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	session := NewSession(cfg, conn)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestAssistBuildsEnvelope(t *testing.T) {
	fake := &fakeAssistant{scripts: [][]*embedded.AssistResponse{{reply("", "")}}}
	session := newTestSession(t, fake, testConfig())

	_, err := session.Assist(context.Background(), `broadcast "hello"`)
	require.NoError(t, err)

	cfg := fake.request(0).GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, `broadcast "hello"`, cfg.GetTextQuery())
	assert.Equal(t, "en-US", cfg.GetDialogStateIn().GetLanguageCode())
	assert.Equal(t, embedded.AudioOutConfig_LINEAR16, cfg.GetAudioOutConfig().GetEncoding())
	assert.Equal(t, int32(16000), cfg.GetAudioOutConfig().GetSampleRateHertz())
	assert.Equal(t, int32(0), cfg.GetAudioOutConfig().GetVolumePercentage())
	assert.Equal(t, "HA_GA_TEXT_SERVER", cfg.GetDeviceConfig().GetDeviceId())
	assert.Equal(t, "HA_GA", cfg.GetDeviceConfig().GetDeviceModelId())
}

func TestAssistFirstCallSendsEmptyState(t *testing.T) {
	fake := &fakeAssistant{scripts: [][]*embedded.AssistResponse{{reply("T1", "Hi")}}}
	session := newTestSession(t, fake, testConfig())

	_, err := session.Assist(context.Background(), "hello")
	require.NoError(t, err)

	assert.Empty(t, fake.request(0).GetConfig().GetDialogStateIn().GetConversationState())
}

func TestAssistCarriesConversationState(t *testing.T) {
	fake := &fakeAssistant{scripts: [][]*embedded.AssistResponse{
		{reply("T1", "Hi")},
		{reply("", "Bye")},
	}}
	session := newTestSession(t, fake, testConfig())
	ctx := context.Background()

	first, err := session.Assist(ctx, "hello")
	require.NoError(t, err)
	assert.True(t, first.HasDisplayText)
	assert.Equal(t, "Hi", first.DisplayText)
	assert.Equal(t, []byte("T1"), session.ConversationState())

	second, err := session.Assist(ctx, "goodbye")
	require.NoError(t, err)
	assert.Equal(t, []byte("T1"), fake.request(1).GetConfig().GetDialogStateIn().GetConversationState())
	assert.Equal(t, "Bye", second.DisplayText)
	// An empty token in the response does not clear the stored one.
	assert.Equal(t, []byte("T1"), session.ConversationState())
	assert.Equal(t, []byte("T1"), second.ConversationState)
}

func TestAssistLastTokenWins(t *testing.T) {
	fake := &fakeAssistant{scripts: [][]*embedded.AssistResponse{
		{reply("T1", ""), reply("T2", ""), reply("", "")},
	}}
	session := newTestSession(t, fake, testConfig())

	result, err := session.Assist(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Responses)
	assert.Equal(t, []byte("T2"), session.ConversationState())
}

func TestAssistLastDisplayTextWins(t *testing.T) {
	fake := &fakeAssistant{scripts: [][]*embedded.AssistResponse{
		{reply("", "A"), reply("", ""), reply("", "B"), reply("T9", "")},
	}}
	session := newTestSession(t, fake, testConfig())

	result, err := session.Assist(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, result.HasDisplayText)
	assert.Equal(t, "B", result.DisplayText)
}

func TestAssistWithoutDisplayText(t *testing.T) {
	fake := &fakeAssistant{scripts: [][]*embedded.AssistResponse{
		{reply("T1", ""), {}},
	}}
	session := newTestSession(t, fake, testConfig())

	result, err := session.Assist(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, result.HasDisplayText)
	assert.Empty(t, result.DisplayText)
}

func TestAssistEmptyStream(t *testing.T) {
	fake := &fakeAssistant{}
	session := newTestSession(t, fake, testConfig())

	result, err := session.Assist(context.Background(), "hello")
	require.NoError(t, err)
	assert.Zero(t, result.Responses)
	assert.False(t, result.HasDisplayText)
	assert.Empty(t, session.ConversationState())
}

func TestAssistDeadlineKeepsAppliedState(t *testing.T) {
	fake := &fakeAssistant{
		scripts: [][]*embedded.AssistResponse{{reply("T1", "partial")}},
		hang:    true,
	}
	cfg := testConfig()
	cfg.Deadline = 300 * time.Millisecond
	session := newTestSession(t, fake, cfg)

	result, err := session.Assist(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Equal(t, codes.DeadlineExceeded, CodeOf(err))

	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, "receive", exchangeErr.Op)

	assert.Equal(t, []byte("T1"), session.ConversationState())
	assert.Equal(t, "partial", result.DisplayText)
}

func TestAssistUpstreamRejection(t *testing.T) {
	fake := &fakeAssistant{fail: status.Error(codes.Unauthenticated, "token revoked")}
	session := newTestSession(t, fake, testConfig())

	_, err := session.Assist(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Equal(t, codes.Unauthenticated, CodeOf(err))
	assert.Contains(t, err.Error(), "token revoked")
}

func TestAssistCallerCancellation(t *testing.T) {
	fake := &fakeAssistant{hang: true}
	session := newTestSession(t, fake, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := session.Assist(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, CodeOf(err))
}

func TestAssistSerialisesExchanges(t *testing.T) {
	scripts := make([][]*embedded.AssistResponse, 4)
	for i := range scripts {
		scripts[i] = []*embedded.AssistResponse{reply("T", "ok")}
	}
	fake := &fakeAssistant{scripts: scripts, delay: 20 * time.Millisecond}
	session := newTestSession(t, fake, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < len(scripts); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := session.Assist(context.Background(), "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.maxInflight))
}

func TestSessionConfigIsImmutable(t *testing.T) {
	session := newTestSession(t, &fakeAssistant{}, testConfig())

	cfg := session.Config()
	cfg.DeviceID = "other"

	assert.Equal(t, "HA_GA_TEXT_SERVER", session.Config().DeviceID)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, codes.OK, CodeOf(nil))
	assert.Equal(t, codes.Unavailable, CodeOf(status.Error(codes.Unavailable, "down")))
	assert.Equal(t, codes.Unknown, CodeOf(errors.New("plain")))

	wrapped := newExchangeError(context.Background(), "open", context.DeadlineExceeded)
	assert.Equal(t, codes.DeadlineExceeded, wrapped.Code)
}
