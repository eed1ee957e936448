package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"servicemarket/internal/domain"
	"servicemarket/internal/pkg/response"
)

const (
	authWait   = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// ServeWS runs the realtime channel of one order. The first frame must be
// {"type":"auth"} carrying an access token; the reply is ready or error.
func (h *Handler) ServeWS(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.service.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrame)

	ctx := c.Request.Context()
	actor, err := h.authenticate(ctx, conn, id)
	if err != nil {
		status, code := response.Classify(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			h.service.log.Error().Err(err).Int64("order_id", id).Msg("realtime handshake failed")
			msg = "Internal server error"
		}
		rejectAndClose(conn, domain.NewErrorFrame(code, msg))
		return
	}

	// ready must be the first frame after auth, so the peer joins the room only after it
	peer := NewPeer(actor.UserID, conn)
	if err := peer.Write(&domain.Frame{Type: domain.FrameReady}); err != nil {
		_ = conn.Close()
		return
	}
	h.hub.Join(id, peer)
	defer h.hub.Leave(id, peer)

	h.service.log.Info().Int64("order_id", id).Int64("user_id", actor.UserID).Msg("realtime peer joined")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(peer, done)

	h.readLoop(ctx, conn, peer, actor, id)
}

func (h *Handler) authenticate(ctx context.Context, conn *websocket.Conn, orderID int64) (domain.Actor, error) {
	_ = conn.SetReadDeadline(time.Now().Add(authWait))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	var f domain.Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != domain.FrameAuth || f.Token == "" {
		return domain.Actor{}, domain.ErrUnauthorized
	}

	claims, err := h.tokens.ValidateToken(f.Token)
	if err != nil {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	actor := domain.Actor{UserID: claims.UserID, Role: domain.UserRole(claims.Role)}

	if _, err := h.service.Authorize(ctx, actor, orderID); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, peer *Peer, actor domain.Actor, orderID int64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.service.log.Debug().Err(err).Int64("order_id", orderID).Msg("realtime peer dropped")
			}
			return
		}

		var f domain.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = peer.Write(domain.NewErrorFrame(domain.CodeValidation, "malformed frame"))
			continue
		}

		switch f.Type {
		case domain.FrameSend:
			// the broadcast of the stored message is the acknowledgement
			if _, err := h.service.Post(ctx, actor, orderID, f.Body, f.ClientID, domain.ChannelRealtime); err != nil {
				_, code := response.Classify(err)
				ef := domain.NewErrorFrame(code, err.Error())
				ef.ClientID = f.ClientID
				_ = peer.Write(ef)
			}
		case domain.FramePing:
			_ = peer.Write(&domain.Frame{Type: domain.FramePong})
		default:
			_ = peer.Write(domain.NewErrorFrame(domain.CodeValidation, "unsupported frame type "+string(f.Type)))
		}
	}
}

func keepAlive(peer *Peer, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := peer.ping(); err != nil {
				return
			}
		}
	}
}

func rejectAndClose(conn *websocket.Conn, f *domain.Frame) {
	if data, err := json.Marshal(f); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}
