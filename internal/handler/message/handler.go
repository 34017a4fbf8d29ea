package message

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ga-webserver/backend/internal/model/exchange"
	"github.com/zhouzirui/ga-webserver/backend/pkg/utils"
)

// DefaultMessage 在未提供 message 参数时使用。
const DefaultMessage = "This is a test!"

// Endpoint names recorded in the journal.
const (
	EndpointBroadcast = "broadcast"
	EndpointStandard  = "standard"
)

// Sender 抽象中继服务，便于测试
type Sender interface {
	Send(ctx context.Context, endpoint, textQuery string) (exchange.Entry, error)
}

// Handler 消息转发的HTTP处理器
type Handler struct {
	sender       Sender
	reportErrors bool
}

// New 创建消息处理器。reportErrors 为 false 时，上游失败同样返回 {"status":"OK"}。
func New(sender Sender, reportErrors bool) *Handler {
	return &Handler{
		sender:       sender,
		reportErrors: reportErrors,
	}
}

// RegisterRoutes 注册消息相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/broadcast_message", h.handleBroadcast)
	r.Get("/standard_message", h.handleStandard)
}

// BroadcastQuery wraps message as a broadcast command. No escaping is applied.
func BroadcastQuery(message string) string {
	return `broadcast "` + message + `"`
}

// handleBroadcast 以广播指令转发消息
func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, EndpointBroadcast, BroadcastQuery(messageParam(r)))
}

// handleStandard 直接转发原始消息
func (h *Handler) handleStandard(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, EndpointStandard, messageParam(r))
}

func (h *Handler) relay(w http.ResponseWriter, r *http.Request, endpoint, textQuery string) {
	// The exchange outlives a disconnecting caller; the session deadline still bounds it.
	ctx := context.WithoutCancel(r.Context())

	entry, err := h.sender.Send(ctx, endpoint, textQuery)
	if err != nil && h.reportErrors {
		utils.RespondJSON(w, http.StatusBadGateway, map[string]string{
			"status": "ERROR",
			"error":  err.Error(),
			"code":   entry.Code,
		})
		return
	}

	utils.RespondOK(w)
}

func messageParam(r *http.Request) string {
	if message := r.URL.Query().Get("message"); message != "" {
		return message
	}
	return DefaultMessage
}
