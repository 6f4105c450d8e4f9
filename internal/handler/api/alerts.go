package api

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	domainrepo "github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	xhttp "github.com/Zentex1337/crypto-tracker-api/pkg/http"
	xlogger "github.com/Zentex1337/crypto-tracker-api/pkg/logger"
)

// AlertsHandler exposes alert CRUD over HTTP.
type AlertsHandler struct {
	logger   *xlogger.Logger
	store    domainrepo.AlertStore
	source   domainrepo.PriceSource
	registry *subscription.Registry
	clock    clockwork.Clock
}

func NewAlertsHandler(log *xlogger.Logger, store domainrepo.AlertStore, source domainrepo.PriceSource, reg *subscription.Registry, clock clockwork.Clock) *AlertsHandler {
	return &AlertsHandler{logger: log, store: store, source: source, registry: reg, clock: clock}
}

func (h *AlertsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/alerts")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.PATCH("/:id/deactivate", h.Deactivate)
	g.DELETE("/:id", h.Delete)
}

type createAlertRequest struct {
	Symbol        string  `json:"symbol" validate:"required"`
	Condition     string  `json:"condition" validate:"required,oneof=above below percent_change"`
	TargetPrice   float64 `json:"target_price" validate:"required_if=Condition above,required_if=Condition below,omitempty,gt=0"`
	PercentChange float64 `json:"percent_change"`
	BasePrice     float64 `json:"base_price" validate:"omitempty,gt=0"`
}

func (h *AlertsHandler) Create(c echo.Context) error {
	id := resolveIdentity(c)
	if id.Anonymous {
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("alerts require an authenticated user"))
	}

	req := &createAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.registry.Supported(req.Symbol) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("unsupported symbol"))
	}

	ctx := c.Request().Context()
	limits := models.LimitsFor(id.Tier)
	active, err := h.store.CountActive(ctx, id.UserID)
	if err != nil {
		h.logger.Error("count active alerts", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if active >= limits.MaxActiveAlerts {
		return xhttp.AppErrorResponse(c, xhttp.CapacityError("active alert limit reached"))
	}

	alert := &models.Alert{
		ID:            uuid.NewString(),
		UserID:        id.UserID,
		Symbol:        req.Symbol,
		Condition:     models.AlertCondition(req.Condition),
		TargetPrice:   req.TargetPrice,
		PercentChange: req.PercentChange,
		BasePrice:     req.BasePrice,
		Active:        true,
		CreatedAt:     h.clock.Now().UTC(),
	}

	// percent_change alerts measure moves against a base price; when the
	// client does not supply one, anchor to the current market price.
	if alert.Condition == models.ConditionPercentChange && alert.BasePrice == 0 {
		snap, err := h.source.FetchOne(ctx, alert.Symbol)
		if err != nil {
			h.logger.Error("resolve base price", xlogger.String("symbol", alert.Symbol), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("could not resolve base price"))
		}
		alert.BasePrice = snap.Price
	}

	if err := alert.Validate(); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	if err := h.store.Create(ctx, alert); err != nil {
		h.logger.Error("create alert", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, alert)
}

func (h *AlertsHandler) List(c echo.Context) error {
	id := resolveIdentity(c)
	if id.Anonymous {
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("alerts require an authenticated user"))
	}
	alerts, err := h.store.ListByOwner(c.Request().Context(), id.UserID)
	if err != nil {
		h.logger.Error("list alerts", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	return xhttp.SuccessResponse(c, alerts)
}

func (h *AlertsHandler) Deactivate(c echo.Context) error {
	id := resolveIdentity(c)
	if id.Anonymous {
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("alerts require an authenticated user"))
	}
	err := h.store.Deactivate(c.Request().Context(), c.Param("id"), id.UserID)
	if errors.Is(err, models.ErrAlertNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("alert not found"))
	}
	if err != nil {
		h.logger.Error("deactivate alert", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *AlertsHandler) Delete(c echo.Context) error {
	id := resolveIdentity(c)
	if id.Anonymous {
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("alerts require an authenticated user"))
	}
	err := h.store.Delete(c.Request().Context(), c.Param("id"), id.UserID)
	if errors.Is(err, models.ErrAlertNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("alert not found"))
	}
	if err != nil {
		h.logger.Error("delete alert", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}
