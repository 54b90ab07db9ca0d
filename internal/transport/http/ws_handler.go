package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSHandler upgrades HTTP requests to websockets and feeds inbound events
// into the ConnectionRegistry.
type WSHandler struct {
	registry *ConnectionRegistry
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *ConnectionRegistry) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	c := &connection{
		clientID: clientID,
		send:     make(chan outboundMessage, 64),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := ws.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("client", clientID).Msg("ws write error")
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := ws.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, c, inbound)
	}

	// The request context may already be canceled once the socket drops;
	// presence bookkeeping still has to run.
	h.registry.Disconnect(context.Background(), c)
	close(c.send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, c *connection, inbound inboundMessage) {
	switch inbound.Type {
	case evCreateSession:
		var p createSessionPayload
		if !decode(c, inbound.Payload, &p) {
			return
		}
		h.registry.CreateSession(ctx, c, p.QuizID)
	case evJoin:
		var p joinPayload
		if !decode(c, inbound.Payload, &p) {
			return
		}
		h.registry.Join(ctx, c, p.PIN, p.PlayerName)
	case evStartSession:
		var p sessionRefPayload
		if !decode(c, inbound.Payload, &p) {
			return
		}
		h.registry.Start(ctx, c, p.SessionID)
	case evSubmitAnswer:
		var p submitAnswerPayload
		if !decode(c, inbound.Payload, &p) {
			return
		}
		h.registry.SubmitAnswer(ctx, c, p)
	case evNextQuestion:
		var p sessionRefPayload
		if !decode(c, inbound.Payload, &p) {
			return
		}
		h.registry.NextQuestion(ctx, c, p.SessionID)
	case evEndSession:
		var p sessionRefPayload
		if !decode(c, inbound.Payload, &p) {
			return
		}
		h.registry.End(ctx, c, p.SessionID)
	default:
		c.sendErrorMessage("unsupported message type")
	}
}

func decode(c *connection, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		c.sendErrorMessage("invalid payload")
		return false
	}
	return true
}
