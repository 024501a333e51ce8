package frontend

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jo-hoe/sheetimage/internal/render"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// websocketHandler pushes the image state as JSON, first the current state and
// then every change. A slow client only ever receives the latest state.
func (service *FrontendService) websocketHandler(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		slog.Warn("websocketHandler: upgrade failed", "error", err)
		return nil
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			slog.Debug("websocketHandler: close failed", "error", cerr)
		}
	}()

	updates := make(chan render.State, 1)
	unregister := service.coreService.OnImageChange(func(state render.State) {
		for {
			select {
			case updates <- state:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unregister()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := service.writeState(conn, service.coreService.ImageState()); err != nil {
		return nil
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return nil
		case state := <-updates:
			if err := service.writeState(conn, state); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

func (service *FrontendService) writeState(conn *websocket.Conn, state render.State) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(state); err != nil {
		slog.Debug("websocketHandler: write failed", "error", err)
		return err
	}
	return nil
}
