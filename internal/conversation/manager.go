package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
)

type Config struct {
	// ws:// or wss:// origin; the channel for an order lives at /ws/orders/{id}
	WSBaseURL string

	DialTimeout  time.Duration
	SendTimeout  time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	c.WSBaseURL = strings.TrimRight(c.WSBaseURL, "/")
	return c
}

// Manager opens conversations. Each Handle is bound to exactly one order.
type Manager struct {
	api     API
	orders  OrderSource
	session SessionSource
	bus     *events.Bus
	cfg     Config
	dialer  *websocket.Dialer
}

func NewManager(api API, orders OrderSource, session SessionSource, bus *events.Bus, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		api:     api,
		orders:  orders,
		session: session,
		bus:     bus,
		cfg:     cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  cfg.DialTimeout,
			EnableCompression: true,
		},
	}
}

// Open loads the order's history and tries the realtime channel. Failing to
// establish it is not an error: the handle runs fallback-only and reports
// StateFallback. Open fails with domain.ErrNoParticipant when the order has no
// worker or is not in a conversational status.
func (m *Manager) Open(ctx context.Context, orderID int64) (*Handle, error) {
	order, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !conversational(order) {
		// a cached copy may predate the acceptance
		if order, err = m.orders.Refresh(ctx, orderID); err != nil {
			return nil, err
		}
	}
	if !conversational(order) {
		return nil, fmt.Errorf("%w: order %d is %s", domain.ErrNoParticipant, orderID, order.Status)
	}

	sess := m.session.Get()
	hctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		orderID:  orderID,
		self:     sess.UserID,
		cfg:      m.cfg,
		bus:      m.bus,
		log:      logger.WithOrder("conversation", orderID),
		fallback: &fallbackChannel{api: m.api, orderID: orderID},
		ctx:      hctx,
		cancel:   cancel,
		state:    StateConnecting,
		timeline: newTimeline(),
	}
	metrics.OpenChannels.Inc()

	if err := h.refresh(ctx, false); err != nil {
		h.log.Warn().Err(err).Msg("history load failed")
	}

	switch {
	case sess.AccessToken == "":
		h.degrade(nil, errors.New("no credential for realtime channel"))
	case m.cfg.WSBaseURL == "":
		h.degrade(nil, errors.New("realtime channel not configured"))
	default:
		rt, err := dialRealtime(ctx, m.dialer, realtimeURL(m.cfg.WSBaseURL, orderID), sess.AccessToken, m.cfg.DialTimeout, m.cfg.SendTimeout, h.log)
		if err != nil {
			h.degrade(nil, err)
			break
		}
		h.attach(rt)
		// messages stored between the history load and the ready frame
		if err := h.refresh(ctx, false); err != nil {
			h.log.Debug().Err(err).Msg("history catch-up failed")
		}
	}
	return h, nil
}

func conversational(o *domain.Order) bool {
	return o.HasWorker() && o.Status.AllowsConversation()
}
