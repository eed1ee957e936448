package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/metrics"
)

// State of a conversation handle.
type State string

const (
	StateConnecting State = "connecting"
	StateRealtime   State = "realtime"
	StateFallback   State = "fallback"
	StateClosed     State = "closed"
)

// Handle is an open conversation for one order. It owns the message timeline;
// readers get copies.
type Handle struct {
	orderID  int64
	self     int64
	cfg      Config
	bus      *events.Bus
	log      zerolog.Logger
	fallback *fallbackChannel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	rt        *realtimeChannel
	state     State
	closed    bool
	polling   bool
	timeline  *timeline
	onMessage []func(domain.Message)
	onState   []func(State, error)

	// serializes callback invocation across the reader and poller goroutines
	deliverMu sync.Mutex
	closeOnce sync.Once
}

func (h *Handle) OrderID() int64 {
	return h.orderID
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Messages returns a copy of the timeline in display order.
func (h *Handle) Messages() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timeline.snapshot()
}

// OnMessage registers a callback for messages that arrive after registration.
// A server message id is delivered at most once. Callbacks must not block.
func (h *Handle) OnMessage(fn func(domain.Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = append(h.onMessage, fn)
}

// OnStateChange registers a callback for realtime/fallback switches. A switch to
// fallback carries an error wrapping domain.ErrChannelDegraded.
func (h *Handle) OnStateChange(fn func(State, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onState = append(h.onState, fn)
}

// Send delivers text over the realtime channel when it is ready and over the
// fallback path otherwise, and returns the stored message. A realtime send that
// is not acknowledged is retried once over fallback; the server deduplicates by
// ClientID. Each attempt is bounded by the send timeout. A message the server
// refuses is removed from the timeline and the refusal is returned.
func (h *Handle) Send(ctx context.Context, text string) (*domain.Message, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	rt := h.rt
	h.mu.Unlock()

	msg := &domain.Message{
		ClientID: uuid.NewString(),
		OrderID:  h.orderID,
		SenderID: h.self,
		Body:     body,
		SentAt:   time.Now().UTC(),
		Pending:  true,
	}

	var ch channel = h.fallback
	if rt != nil {
		ch = rt
	}
	for {
		msg.Channel = ch.kind()
		h.addProvisional(msg)

		acked, err := h.deliver(ctx, ch, msg)
		if err == nil {
			metrics.ChannelMessages.WithLabelValues("out", string(ch.kind())).Inc()
			h.receive(acked, false)
			out := *acked
			out.Pending = false
			return &out, nil
		}

		if ch.kind() == domain.ChannelRealtime && !errors.Is(err, ErrRejected) && ctx.Err() == nil {
			// one retry over fallback
			h.degrade(rt, fmt.Errorf("realtime send: %w", err))
			ch = h.fallback
			continue
		}

		h.mu.Lock()
		h.timeline.dropProvisional(msg.ClientID)
		h.mu.Unlock()
		h.log.Warn().Err(err).Str("channel", string(ch.kind())).Msg("send failed")
		return nil, fmt.Errorf("send message: %w", err)
	}
}

func (h *Handle) deliver(ctx context.Context, ch channel, msg *domain.Message) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()
	return ch.send(ctx, msg)
}

func (h *Handle) addProvisional(m *domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeline.addProvisional(m)
}

// Refresh fetches the history over the fallback path and merges it.
func (h *Handle) Refresh(ctx context.Context) error {
	return h.refresh(ctx, true)
}

func (h *Handle) refresh(ctx context.Context, notify bool) error {
	msgs, err := h.fallback.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch messages for order %d: %w", h.orderID, err)
	}
	for _, m := range msgs {
		h.receive(m, notify)
	}
	return nil
}

// receive merges a server message and, when it is new and notify is set, hands it
// to callbacks and the bus.
func (h *Handle) receive(m *domain.Message, notify bool) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	added := h.timeline.merge(m)
	callbacks := append([]func(domain.Message){}, h.onMessage...)
	h.mu.Unlock()

	if !added || !notify {
		return
	}
	metrics.ChannelMessages.WithLabelValues("in", string(m.Channel)).Inc()

	msg := *m
	msg.Pending = false
	h.deliverMu.Lock()
	for _, fn := range callbacks {
		fn(msg)
	}
	h.deliverMu.Unlock()

	if msg.SenderID != h.self {
		h.bus.Publish(&events.Event{Type: events.EventMessageReceived, OrderID: h.orderID, Payload: msg})
	}
}

func (h *Handle) attach(rt *realtimeChannel) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		rt.close()
		return
	}
	h.rt = rt
	h.state = StateRealtime
	callbacks := append([]func(State, error){}, h.onState...)
	h.wg.Add(2)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		rt.listen(
			func(m *domain.Message) { h.receive(m, true) },
			func(err error) { h.degrade(rt, err) },
		)
	}()
	go func() {
		defer h.wg.Done()
		rt.pingLoop()
	}()

	h.log.Info().Msg("realtime channel ready")
	h.bus.Publish(&events.Event{Type: events.EventChannelReady, OrderID: h.orderID})
	for _, fn := range callbacks {
		fn(StateRealtime, nil)
	}
}

// degrade switches the handle to fallback-only after rt failed (rt is nil when it
// never opened) and starts polling. It is a no-op once closed or already degraded.
func (h *Handle) degrade(rt *realtimeChannel, cause error) {
	h.mu.Lock()
	if h.closed || h.rt != rt || (rt == nil && h.state == StateFallback) {
		h.mu.Unlock()
		return
	}
	h.rt = nil
	h.state = StateFallback
	callbacks := append([]func(State, error){}, h.onState...)
	startPoll := !h.polling && h.cfg.PollInterval > 0
	if startPoll {
		h.polling = true
		h.wg.Add(1)
	}
	h.mu.Unlock()

	if rt != nil {
		rt.close()
	}

	err := fmt.Errorf("%w: %w", domain.ErrChannelDegraded, cause)
	h.log.Warn().Err(cause).Msg("realtime channel degraded, using fallback")
	metrics.ChannelDegradations.Inc()
	h.bus.Publish(&events.Event{Type: events.EventChannelDegraded, OrderID: h.orderID, Err: err})
	for _, fn := range callbacks {
		fn(StateFallback, err)
	}

	if startPoll {
		go h.pollLoop()
	}
}

func (h *Handle) pollLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, h.cfg.SendTimeout)
			err := h.Refresh(ctx)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				h.log.Debug().Err(err).Msg("fallback poll failed")
			}
		}
	}
}

// Close releases the realtime channel and stops polling. It is idempotent.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		rt := h.rt
		h.rt = nil
		h.state = StateClosed
		h.mu.Unlock()

		h.cancel()
		if rt != nil {
			rt.close()
		}
		h.wg.Wait()

		metrics.OpenChannels.Dec()
		h.log.Debug().Msg("conversation closed")
	})
}
