package socket

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/Indrakargaurav/codeweave/handlers/auth"
	"github.com/Indrakargaurav/codeweave/room"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// Hub adapts the socket.io server to the engine's Transport: per-connection
// emission and forced disconnects. socket.io puts every socket in a room
// named after its own id, which is what Send and Disconnect address.
type Hub struct {
	io        *socketio.Server
	registry  *room.Registry
	lifecycle *room.Lifecycle
}

func NewHub() *Hub {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	return &Hub{io: socketio.NewServer(nil, opts)}
}

// Server exposes the underlying socket.io server for mounting and shutdown.
func (h *Hub) Server() *socketio.Server { return h.io }

// Send implements room.Transport.
func (h *Hub) Send(connID, event string, payload any) error {
	return h.io.To(socketio.Room(connID)).Emit(event, payload)
}

// Disconnect implements room.Transport.
func (h *Hub) Disconnect(connID string) {
	h.io.In(socketio.Room(connID)).DisconnectSockets(true)
}

// Bind attaches the engine and registers the connection protocol. Called
// once at startup, after the registry and lifecycle exist.
func (h *Hub) Bind(registry *room.Registry, lifecycle *room.Lifecycle) {
	h.registry = registry
	h.lifecycle = lifecycle

	h.io.On("connection", func(clients ...any) {
		sck := clients[0].(*socketio.Socket)
		connID := string(sck.Id())
		logrus.WithField("conn", connID).Info("client connected")

		sck.On("join-room", func(datas ...any) {
			var req struct {
				RoomID   string `json:"roomId"`
				Username string `json:"username"`
			}
			if err := decodeInto(datas, &req); err != nil || req.RoomID == "" {
				logrus.WithField("conn", connID).Warn("malformed join-room payload")
				return
			}
			h.registry.Join(req.RoomID, connID, req.Username)
		})

		sck.On("leave-room", func(datas ...any) {
			var req struct {
				RoomID string `json:"roomId"`
			}
			if err := decodeInto(datas, &req); err != nil || req.RoomID == "" {
				return
			}
			h.registry.Leave(req.RoomID, connID)
		})

		for _, kind := range []string{room.KindTextDelta, room.KindTree, room.KindTreeAndTabs, room.KindChat} {
			kind := kind
			sck.On(kind, func(datas ...any) {
				raw, err := rawPayload(datas)
				if err != nil {
					return
				}
				ev, err := room.Decode(kind, raw)
				if err != nil {
					logrus.WithError(err).WithField("conn", connID).Warn("rejected mutation event")
					return
				}
				if ev.Room() == "" {
					return
				}
				h.registry.Publish(ev.Room(), connID, ev)
			})
		}

		sck.On("shutdown-room", func(datas ...any) {
			var req struct {
				RoomID string         `json:"roomId"`
				Token  string         `json:"token"`
				Files  *core.FileNode `json:"files"`
			}
			if err := decodeInto(datas, &req); err != nil || req.RoomID == "" {
				return
			}
			claims, err := auth.ParseJWT(req.Token)
			if err != nil {
				sck.Emit("shutdown-result", map[string]any{
					"success": false,
					"error":   "invalid token",
				})
				return
			}
			// The drain wait blocks, so run the transition off the socket's
			// event loop and report back when it settles.
			go func() {
				_, err := h.lifecycle.Shutdown(context.Background(), req.RoomID, claims.Subject, req.Files)
				result := map[string]any{"success": err == nil}
				if err != nil {
					result["error"] = err.Error()
				}
				if emitErr := h.Send(connID, "shutdown-result", result); emitErr != nil {
					logrus.WithField("conn", connID).Debug("shutdown result dropped")
				}
			}()
		})

		sck.On("disconnect", func(...any) {
			logrus.WithField("conn", connID).Info("client disconnected")
			h.registry.OnDisconnect(connID)
			sck.RemoveAllListeners("")
		})
	})
}

func rawPayload(datas []any) (json.RawMessage, error) {
	if len(datas) == 0 {
		return nil, errors.New("missing payload")
	}
	return json.Marshal(datas[0])
}

func decodeInto(datas []any, dst any) error {
	raw, err := rawPayload(datas)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
