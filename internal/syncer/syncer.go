package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
)

type Config struct {
	RequestTimeout   time.Duration
	MaxNotifications int
}

// Snapshot is a read-only view of the synchronized state.
type Snapshot struct {
	UnreadNotifications int64
	UnreadMessages      int64
	Notifications       []domain.Notification
	LastSync            time.Time
}

// Synchronizer keeps unread counts and recent notifications close to the server by polling.
//
// One goroutine runs the loop and ticks are strictly sequential: the unread count is
// fetched, then the notifications. A tick whose results arrive after Stop is discarded.
type Synchronizer struct {
	api     API
	orders  OrderActor
	session SessionSource
	bus     *events.Bus
	cfg     Config
	log     zerolog.Logger

	mu       sync.Mutex
	gen      uint64
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	counts   domain.UnreadCounts
	observed map[int64]struct{}
	items    map[int64]*domain.Notification
	lastSync time.Time

	nudge chan struct{}
}

func New(api API, orders OrderActor, session SessionSource, bus *events.Bus, cfg Config) *Synchronizer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.MaxNotifications <= 0 {
		cfg.MaxNotifications = 50
	}
	done := make(chan struct{})
	close(done)

	return &Synchronizer{
		api:      api,
		orders:   orders,
		session:  session,
		bus:      bus,
		cfg:      cfg,
		log:      logger.WithComponent("syncer"),
		done:     done,
		observed: make(map[int64]struct{}),
		items:    make(map[int64]*domain.Notification),
		nudge:    make(chan struct{}, 1),
	}
}

// Start begins polling every interval, with the first tick immediately. It is a
// no-op while already running.
func (s *Synchronizer) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	var sub events.Subscriber
	if s.bus != nil {
		sub = s.bus.Subscribe(events.EventOrderTransitioned, events.EventMessageReceived)
	}

	s.log.Info().Dur("interval", interval).Msg("synchronizer started")
	go s.loop(ctx, gen, interval, sub, done)
}

// Stop cancels the loop without waiting for it. Results of an in-flight tick are
// discarded. Done reports when the goroutine has exited.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.gen++
	s.cancel()
	s.log.Info().Msg("synchronizer stopped")
}

// Done is closed once the current loop has exited. It is closed already when the loop never ran.
func (s *Synchronizer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Nudge requests an early tick.
func (s *Synchronizer) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) loop(ctx context.Context, gen uint64, interval time.Duration, sub events.Subscriber, done chan struct{}) {
	defer close(done)
	if sub != nil {
		defer s.bus.Unsubscribe(sub)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.nudge:
		case ev, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			if !s.handleEvent(ev) {
				continue
			}
		}

		s.tick(ctx, gen)
		timer.Reset(interval)
	}
}

// handleEvent reports whether the event calls for an immediate tick.
func (s *Synchronizer) handleEvent(ev *events.Event) bool {
	switch ev.Type {
	case events.EventOrderTransitioned:
		return true
	case events.EventMessageReceived:
		if msg, ok := ev.Payload.(domain.Message); ok {
			s.ObserveMessage(msg)
		}
	}
	return false
}

func (s *Synchronizer) tick(ctx context.Context, gen uint64) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	counts, err := s.api.UnreadCounts(ctx)
	if err != nil {
		s.tickFailed(ctx, err)
		return
	}
	list, err := s.api.ListNotifications(ctx, s.cfg.MaxNotifications)
	if err != nil {
		s.tickFailed(ctx, err)
		return
	}

	if !s.apply(gen, counts, list) {
		metrics.PollTicks.WithLabelValues("discarded").Inc()
		s.log.Debug().Msg("discarding tick that finished after stop")
		return
	}
	metrics.PollTicks.WithLabelValues("ok").Inc()
	s.publish()
}

func (s *Synchronizer) tickFailed(ctx context.Context, err error) {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		metrics.PollTicks.WithLabelValues("discarded").Inc()
		return
	}
	metrics.PollTicks.WithLabelValues("error").Inc()
	s.log.Warn().Err(err).Msg("poll tick failed, retrying next tick")
}

// apply replaces the counts and upserts notifications unless gen is stale.
func (s *Synchronizer) apply(gen uint64, counts domain.UnreadCounts, list []*domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.gen != gen {
		return false
	}

	s.counts = counts
	s.observed = make(map[int64]struct{})
	for _, remote := range list {
		if remote == nil || remote.ID == 0 {
			continue
		}
		if cur, ok := s.items[remote.ID]; ok {
			cur.MergeFrom(remote)
			continue
		}
		s.items[remote.ID] = remote.Clone()
	}
	s.trim()
	s.lastSync = time.Now()
	metrics.UnreadNotifications.Set(float64(s.counts.Notifications))
	return true
}

// trim keeps the newest MaxNotifications entries. Callers hold mu.
func (s *Synchronizer) trim() {
	if len(s.items) <= s.cfg.MaxNotifications {
		return
	}
	sorted := s.sortedLocked()
	for _, n := range sorted[s.cfg.MaxNotifications:] {
		delete(s.items, n.ID)
	}
}

func (s *Synchronizer) sortedLocked() []*domain.Notification {
	out := make([]*domain.Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Snapshot returns copies, newest notification first.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) snapshotLocked() Snapshot {
	sorted := s.sortedLocked()
	list := make([]domain.Notification, len(sorted))
	for i, n := range sorted {
		list[i] = *n.Clone()
	}
	return Snapshot{
		UnreadNotifications: s.counts.Notifications,
		UnreadMessages:      s.counts.Messages,
		Notifications:       list,
		LastSync:            s.lastSync,
	}
}

func (s *Synchronizer) publish() {
	snap := s.Snapshot()
	s.bus.Publish(&events.Event{Type: events.EventNotificationsUpdated, Payload: snap})
}

// ObserveMessage counts a chat message from someone else as unread until the next
// tick replaces the count. A message id is counted once.
func (s *Synchronizer) ObserveMessage(msg domain.Message) {
	if msg.ID == 0 || msg.SenderID == s.session.Get().UserID {
		return
	}

	s.mu.Lock()
	if _, ok := s.observed[msg.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.observed[msg.ID] = struct{}{}
	s.counts.Messages++
	s.mu.Unlock()

	s.publish()
}

// MarkRead sets the read flag locally, then tells the server. A failed request is
// returned but not rolled back; the next tick reconciles.
func (s *Synchronizer) MarkRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	if n, ok := s.items[id]; ok && !n.Read {
		n.Read = true
		s.decrementUnreadLocked()
	}
	s.mu.Unlock()
	s.publish()

	if err := s.api.MarkNotificationRead(ctx, id); err != nil {
		s.log.Warn().Err(err).Int64("notification_id", id).Msg("mark read failed, keeping local state")
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}

// MarkAllRead is MarkRead for every notification.
func (s *Synchronizer) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	for _, n := range s.items {
		n.Read = true
	}
	s.counts.Notifications = 0
	metrics.UnreadNotifications.Set(0)
	s.mu.Unlock()
	s.publish()

	if err := s.api.MarkAllNotificationsRead(ctx); err != nil {
		s.log.Warn().Err(err).Msg("mark all read failed, keeping local state")
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// ActOnNotification performs the order decision the notification asks for. Only
// after the transition succeeds are action_taken, taken_action and read set, together.
func (s *Synchronizer) ActOnNotification(ctx context.Context, id int64, action domain.NotificationAction) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action)
	}

	s.mu.Lock()
	n, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: notification %d", domain.ErrNotFound, id)
	}
	if !n.RequiresAction || n.OrderID == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: notification %d needs no action", domain.ErrValidation, id)
	}
	if n.ActionTaken {
		s.mu.Unlock()
		return fmt.Errorf("%w: notification %d already handled", domain.ErrInvalidTransition, id)
	}
	orderID := *n.OrderID
	s.mu.Unlock()

	actor := s.session.Get().Actor()
	var err error
	switch action {
	case domain.ActionAccept:
		_, err = s.orders.Accept(ctx, orderID, actor)
	case domain.ActionDecline:
		_, err = s.orders.Decline(ctx, orderID, actor, "")
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	wasUnread := false
	if n, ok := s.items[id]; ok {
		wasUnread = !n.Read
		n.ActionTaken = true
		n.TakenAction = action
		n.Read = true
		if wasUnread {
			s.decrementUnreadLocked()
		}
	}
	s.mu.Unlock()
	s.publish()

	if wasUnread {
		if err := s.api.MarkNotificationRead(ctx, id); err != nil {
			s.log.Warn().Err(err).Int64("notification_id", id).Msg("mark read after action failed")
		}
	}
	return nil
}

func (s *Synchronizer) decrementUnreadLocked() {
	if s.counts.Notifications > 0 {
		s.counts.Notifications--
	}
	metrics.UnreadNotifications.Set(float64(s.counts.Notifications))
}
