package http

import "github.com/labstack/echo/v4"

// Handler registers a group of routes on the server's Echo instance.
// The websocket, alerts and stats handlers each implement it.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
