package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/callrelay/internal/core/domain"
	"github.com/Wyydra/callrelay/internal/core/service"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

var (
	errClientClosed  = errors.New("client closed")
	errSendQueueFull = errors.New("send queue full")
)

// WSClient is the connection handle for one websocket. Sends are queued and
// written by a single writer goroutine.
type WSClient struct {
	id   domain.ConnID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func newWSClient(conn *websocket.Conn, queueSize int) *WSClient {
	return &WSClient{
		id:   domain.NewConnID(),
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *WSClient) ID() domain.ConnID {
	return c.id
}

func (c *WSClient) Send(d domain.Delivery) error {
	return c.reply(deliveryFrame(d))
}

func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *WSClient) reply(frame outboundDTO) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendQueueFull
	}
}

func (c *WSClient) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(conn, h.cfg.SendQueueSize)

	l := log.With().Str("conn_id", client.ID().String()).Logger()
	// teardown must finish even after the request context is gone
	ctx := l.WithContext(context.WithoutCancel(r.Context()))
	l.Info().Msg("New client connected")

	idle := h.cfg.WSIdleTimeout
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	h.Hub.Register(client)
	go client.writePump(h.cfg.WSPingInterval)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Signaling.Disconnect(ctx, client)
		h.Hub.Unregister(client)
		_ = client.Close()
	}()

	// listening for browser
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))

		var req inboundDTO
		if err := json.Unmarshal(data, &req); err != nil {
			h.replyError(ctx, client, fmt.Errorf("%w: %v", errBadRequest, err), "")
			continue
		}

		ctx = h.handleFrame(ctx, client, req)
	}
}

// handleFrame processes one inbound frame and returns the context to use for
// the following ones.
func (h *Handler) handleFrame(ctx context.Context, client *WSClient, req inboundDTO) context.Context {
	if req.Type == typeJoin {
		id := domain.Identity(req.Identity)
		if err := h.Signaling.Join(ctx, client, id); err != nil {
			h.replyError(ctx, client, err, "")
			return ctx
		}
		if err := client.reply(joinedFrame(id, client.ID())); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to confirm join")
		}
		l := zerolog.Ctx(ctx).With().Str("identity", id.String()).Logger()
		return l.WithContext(ctx)
	}

	kind, ok := req.kind()
	if !ok {
		h.replyError(ctx, client, fmt.Errorf("%w: unknown message type %q", errBadRequest, req.Type), req.Target)
		return ctx
	}

	env := domain.NewEnvelope(kind, "", domain.Identity(req.Target), req.payload())
	if err := h.Signaling.Route(ctx, client, env); err != nil {
		h.replyError(ctx, client, err, req.Target)
	}
	return ctx
}

func (h *Handler) replyError(ctx context.Context, client *WSClient, err error, target string) {
	l := zerolog.Ctx(ctx)
	if service.IsRecoverable(err) || errors.Is(err, errBadRequest) {
		l.Debug().Err(err).Str("target", target).Msg("Request rejected")
	} else {
		l.Error().Err(err).Str("target", target).Msg("Failed to handle request")
	}
	if sendErr := client.reply(errorFrame(err, target)); sendErr != nil {
		l.Warn().Err(sendErr).Msg("Failed to send error to client")
	}
}
