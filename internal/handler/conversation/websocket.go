package conversation

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/ga-webserver/backend/internal/handler/message"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/assistant"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	// EndpointWebSocket is the journal endpoint name for websocket exchanges.
	EndpointWebSocket = "websocket"
)

// WebSocketHandler 交互式文本会话处理器，与消息端点不同，它把展示文本和错误返回给客户端。
type WebSocketHandler struct {
	sender      message.Sender
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sender message.Sender) *WebSocketHandler {
	return &WebSocketHandler{
		sender:      sender,
		readTimeout: readTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/conversation", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type         string      `json:"type"`
	ConnectionID string      `json:"connectionId,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Timestamp    int64       `json:"timestamp"`
}

// ReplyData is the payload of a "reply" message.
type ReplyData struct {
	ExchangeID     string `json:"exchangeId"`
	DisplayText    string `json:"displayText,omitempty"`
	HasDisplayText bool   `json:"hasDisplayText"`
}

// ErrorData is the payload of an "error" message.
type ErrorData struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	ExchangeID string `json:"exchangeId,omitempty"`
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	connectionID := uuid.NewString()
	logger := log.With().Str("connection_id", connectionID).Logger()
	logger.Info().Msg("[websocket] new connection")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, outgoingMessage{Type: "connected", ConnectionID: connectionID})

	for {
		// 交换期间不读取连接，pong 无法续期，因此每次读取前重新设置截止时间。
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("[websocket] read error")
			}
			return
		}

		h.handleMessage(ctx, conn, connectionID, msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, connectionID string, msg inboundMessage) {
	var textQuery string
	switch msg.Type {
	case "query":
		textQuery = msg.Text
	case "broadcast":
		textQuery = message.BroadcastQuery(msg.Text)
	default:
		h.sendError(conn, connectionID, ErrorData{Message: "unsupported message type: " + msg.Type})
		return
	}

	if strings.TrimSpace(msg.Text) == "" {
		h.sendError(conn, connectionID, ErrorData{Message: "text is required"})
		return
	}

	entry, err := h.sender.Send(ctx, EndpointWebSocket, textQuery)
	if err != nil {
		h.sendError(conn, connectionID, ErrorData{
			Message:    err.Error(),
			Code:       assistant.CodeOf(err).String(),
			ExchangeID: entry.ID,
		})
		return
	}

	h.send(conn, outgoingMessage{
		Type:         "reply",
		ConnectionID: connectionID,
		Data: ReplyData{
			ExchangeID:     entry.ID,
			DisplayText:    entry.DisplayText,
			HasDisplayText: entry.HasDisplayText,
		},
	})
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, connectionID string, data ErrorData) {
	h.send(conn, outgoingMessage{Type: "error", ConnectionID: connectionID, Data: data})
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Msg("[websocket] write failed")
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
