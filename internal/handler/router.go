package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/ga-webserver/backend/internal/config"
	"github.com/zhouzirui/ga-webserver/backend/internal/handler/conversation"
	"github.com/zhouzirui/ga-webserver/backend/internal/handler/journal"
	"github.com/zhouzirui/ga-webserver/backend/internal/handler/message"
	middlewarePkg "github.com/zhouzirui/ga-webserver/backend/internal/middleware"
	journalService "github.com/zhouzirui/ga-webserver/backend/internal/service/journal"
	"github.com/zhouzirui/ga-webserver/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(sender message.Sender, journalSvc *journalService.Service, facade config.FacadeConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)

	// Message endpoints stay at the root for existing automations.
	message.New(sender, facade.ReportExchangeErrors).RegisterRoutes(r)
	conversation.NewWebSocketHandler(sender).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		if journalSvc != nil {
			journal.New(journalSvc).RegisterRoutes(api)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondOK(w)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
