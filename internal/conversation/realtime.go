package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 64 * 1024
)

var (
	errMalformedFrame = errors.New("malformed frame")
	errConnectionLost = errors.New("realtime connection lost before acknowledgement")
)

// ackResult settles one send: the stored message or the server's rejection.
type ackResult struct {
	msg *domain.Message
	err error
}

// realtimeChannel is an authenticated websocket bound to one order.
type realtimeChannel struct {
	conn        *websocket.Conn
	sendTimeout time.Duration
	log         zerolog.Logger

	writeMu sync.Mutex

	// sends waiting for their echo or rejection, by ClientID
	ackMu   sync.Mutex
	waiting map[string]chan ackResult

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func realtimeURL(base string, orderID int64) string {
	return base + "/ws/orders/" + strconv.FormatInt(orderID, 10)
}

// dialRealtime connects and completes the auth handshake within timeout.
func dialRealtime(ctx context.Context, dialer *websocket.Dialer, url, token string, timeout, sendTimeout time.Duration, log zerolog.Logger) (*realtimeChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	deadline := time.Now().Add(timeout)
	if err := writeFrame(conn, &domain.Frame{Type: domain.FrameAuth, Token: token}, deadline); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth frame: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	var reply domain.Frame
	if _, data, err := conn.ReadMessage(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	} else if err := json.Unmarshal(data, &reply); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", errMalformedFrame, err)
	}

	switch reply.Type {
	case domain.FrameReady:
	case domain.FrameError:
		_ = conn.Close()
		if sentinel := domain.ErrorForCode(reply.Code); sentinel != nil {
			return nil, fmt.Errorf("handshake rejected: %w: %s", sentinel, reply.Error)
		}
		return nil, fmt.Errorf("handshake rejected: %s %s", reply.Code, reply.Error)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: unexpected handshake frame %q", errMalformedFrame, reply.Type)
	}

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	return &realtimeChannel{
		conn:        conn,
		sendTimeout: sendTimeout,
		log:         log,
		waiting:     make(map[string]chan ackResult),
		done:        make(chan struct{}),
	}, nil
}

func writeFrame(conn *websocket.Conn, f *domain.Frame, deadline time.Time) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *realtimeChannel) kind() domain.ChannelKind { return domain.ChannelRealtime }

// send writes the message and waits for the server to echo its ClientID as a
// stored message or to reject it with an error frame carrying the same ClientID.
func (c *realtimeChannel) send(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if c.closing.Load() {
		return nil, websocket.ErrCloseSent
	}

	wait := make(chan ackResult, 1)
	c.ackMu.Lock()
	c.waiting[m.ClientID] = wait
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		delete(c.waiting, m.ClientID)
		c.ackMu.Unlock()
	}()

	deadline := time.Now().Add(c.sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	err := writeFrame(c.conn, &domain.Frame{Type: domain.FrameSend, ClientID: m.ClientID, Body: m.Body}, deadline)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case res := <-wait:
		return res.msg, res.err
	case <-c.done:
		return nil, errConnectionLost
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for acknowledgement: %w", ctx.Err())
	}
}

// settle hands res to the send waiting on clientID. It reports false when none is.
func (c *realtimeChannel) settle(clientID string, res ackResult) bool {
	if clientID == "" {
		return false
	}
	c.ackMu.Lock()
	wait, ok := c.waiting[clientID]
	c.ackMu.Unlock()
	if !ok {
		return false
	}
	select {
	case wait <- res:
	default:
	}
	return true
}

func rejection(f *domain.Frame) error {
	if sentinel := domain.ErrorForCode(f.Code); sentinel != nil {
		return fmt.Errorf("%w: %w: %s", ErrRejected, sentinel, f.Error)
	}
	return fmt.Errorf("%w: %s %s", ErrRejected, f.Code, f.Error)
}

// listen reads frames until the connection ends. fail is called once for any
// ending other than close().
func (c *realtimeChannel) listen(deliver func(*domain.Message), fail func(error)) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}
			fail(fmt.Errorf("realtime read: %w", err))
			return
		}

		var f domain.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			fail(fmt.Errorf("%w: %w", errMalformedFrame, err))
			return
		}

		switch f.Type {
		case domain.FrameMessage:
			if f.Message == nil || f.Message.ID <= 0 {
				fail(fmt.Errorf("%w: message frame without message", errMalformedFrame))
				return
			}
			if f.Message.ClientID == "" {
				f.Message.ClientID = f.ClientID
			}
			f.Message.Channel = domain.ChannelRealtime
			deliver(f.Message)
			acked := *f.Message
			c.settle(acked.ClientID, ackResult{msg: &acked})
		case domain.FrameError:
			if c.settle(f.ClientID, ackResult{err: rejection(&f)}) {
				continue
			}
			c.log.Warn().Str("code", f.Code).Str("error", f.Error).Str("client_id", f.ClientID).Msg("realtime channel reported an error")
		case domain.FramePong:
		default:
			c.log.Debug().Str("type", string(f.Type)).Msg("ignoring unknown frame")
		}
	}
}

func (c *realtimeChannel) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.sendTimeout)); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *realtimeChannel) close() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
	})
}
