package journal

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	journalService "github.com/zhouzirui/ga-webserver/backend/internal/service/journal"
	"github.com/zhouzirui/ga-webserver/backend/pkg/utils"
)

// Handler 交换记录的HTTP处理器
type Handler struct {
	journal *journalService.Service
}

// New 创建交换记录处理器
func New(journal *journalService.Service) *Handler {
	return &Handler{
		journal: journal,
	}
}

// RegisterRoutes 注册交换记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/exchanges", h.handleListExchanges)
	r.Get("/exchanges/{exchangeID}", h.handleGetExchange)
}

// handleListExchanges 列出最近的交换，最新的在前
func (h *Handler) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.journal.List(r.Context()))
}

func (h *Handler) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	entry, err := h.journal.Get(r.Context(), chi.URLParam(r, "exchangeID"))
	if errors.Is(err, journalService.ErrEntryNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}
