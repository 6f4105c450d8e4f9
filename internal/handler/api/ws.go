package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/service/ratelimit"
	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	"github.com/Zentex1337/crypto-tracker-api/internal/transport"
	xlogger "github.com/Zentex1337/crypto-tracker-api/pkg/logger"
)

const (
	readLimit = 4 * 1024
	pongWait  = 90 * time.Second
)

// WSHandler upgrades clients to WebSocket and runs their read loop.
type WSHandler struct {
	logger   *xlogger.Logger
	registry *subscription.Registry
	limiter  *ratelimit.Limiter
	anon     models.TierLimits
	upgrader websocket.Upgrader
}

func NewWSHandler(log *xlogger.Logger, reg *subscription.Registry, limiter *ratelimit.Limiter, anon models.TierLimits) *WSHandler {
	return &WSHandler{
		logger:   log,
		registry: reg,
		limiter:  limiter,
		anon:     anon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

func (h *WSHandler) Serve(c echo.Context) error {
	id := resolveIdentity(c)

	raw, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	wsConn := transport.NewWSConn(raw)
	conn, err := h.registry.Register(wsConn, id.UserID, c.RealIP())
	if err != nil {
		reason := "server draining"
		if errors.Is(err, models.ErrCapacityExceeded) {
			reason = "connection capacity exceeded"
		}
		if msg, merr := models.NewError(reason, "ERR_CAPACITY"); merr == nil {
			_ = wsConn.Send(msg)
		}
		_ = wsConn.Close(reason)
		return nil
	}

	h.logger.Info("client connected",
		xlogger.String("conn_id", conn.ID()),
		xlogger.String("remote", conn.RemoteAddr()),
	)

	raw.SetReadLimit(readLimit)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))
		h.registry.Touch(conn)
		return nil
	})

	h.readLoop(c, id, conn, raw)
	return nil
}

func (h *WSHandler) readLoop(c echo.Context, id Identity, conn *subscription.Connection, raw *websocket.Conn) {
	defer func() {
		h.registry.Deregister(conn)
		_ = conn.Close("connection closed")
	}()

	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			return
		}
		h.registry.Touch(conn)

		var req models.ClientRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendError(conn, "malformed request", "ERR_BAD_MESSAGE")
			continue
		}

		switch req.Type {
		case models.MsgSubscribe:
			h.handleSubscribe(c, id, conn, req.Symbols)
		case models.MsgUnsubscribe:
			h.handleUnsubscribe(c, id, conn, req.Symbols)
		default:
			h.sendError(conn, "unknown message type", "ERR_BAD_MESSAGE")
		}
	}
}

func (h *WSHandler) handleSubscribe(c echo.Context, id Identity, conn *subscription.Connection, symbols []string) {
	limit, window := id.budget(h.anon)
	res := h.limiter.CheckStrict(c.Request().Context(), id.Key, limit, window)
	if !res.Allowed {
		h.sendError(conn, "subscription rate limit exceeded", "ERR_RATE_LIMITED")
		return
	}

	accepted, rejected, err := h.registry.Subscribe(conn, symbols)
	if err != nil {
		h.sendError(conn, "subscription failed", "ERR_SUBSCRIBE")
		return
	}
	if msg, merr := models.NewAck(models.MsgSubscribed, accepted); merr == nil {
		_ = conn.Send(msg)
	}
	if len(rejected) > 0 {
		if msg, merr := json.Marshal(models.Envelope{
			Type:    models.MsgError,
			Symbols: rejected,
			Message: "unsupported symbols",
			Code:    "ERR_UNKNOWN_SYMBOL",
		}); merr == nil {
			_ = conn.Send(msg)
		}
	}
}

func (h *WSHandler) handleUnsubscribe(c echo.Context, id Identity, conn *subscription.Connection, symbols []string) {
	limit, window := id.budget(h.anon)
	res := h.limiter.Check(c.Request().Context(), id.Key, limit, window)
	if !res.Allowed {
		h.sendError(conn, "rate limit exceeded", "ERR_RATE_LIMITED")
		return
	}

	removed, err := h.registry.Unsubscribe(conn, symbols)
	if err != nil {
		h.sendError(conn, "unsubscribe failed", "ERR_UNSUBSCRIBE")
		return
	}
	if msg, merr := models.NewAck(models.MsgUnsubscribed, removed); merr == nil {
		_ = conn.Send(msg)
	}
}

func (h *WSHandler) sendError(conn *subscription.Connection, message, code string) {
	if msg, err := models.NewError(message, code); err == nil {
		_ = conn.Send(msg)
	}
}
