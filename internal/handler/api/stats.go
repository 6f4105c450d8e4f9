package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	"github.com/Zentex1337/crypto-tracker-api/internal/usecase"
	xhttp "github.com/Zentex1337/crypto-tracker-api/pkg/http"
)

// StatsHandler exposes operational counters and liveness.
type StatsHandler struct {
	registry  *subscription.Registry
	scheduler *usecase.UpdateScheduler
}

func NewStatsHandler(reg *subscription.Registry, sched *usecase.UpdateScheduler) *StatsHandler {
	return &StatsHandler{registry: reg, scheduler: sched}
}

func (h *StatsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/api/stats", h.Stats)
}

func (h *StatsHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Connections int                `json:"connections"`
	Cycles      usecase.CycleStats `json:"cycles"`
}

func (h *StatsHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, statsResponse{
		Connections: h.registry.Count(),
		Cycles:      h.scheduler.Stats(),
	})
}
