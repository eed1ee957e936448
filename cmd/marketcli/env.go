package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"servicemarket/internal/config"
	"servicemarket/internal/conversation"
	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/logger"
	"servicemarket/internal/orders"
	"servicemarket/internal/session"
	"servicemarket/internal/syncer"
	"servicemarket/internal/transport"
)

// env is the client core for one command invocation.
type env struct {
	cfg     *config.ClientConfig
	bus     *events.Bus
	store   *session.BoltStore
	session *session.Manager
	api     *transport.Client
	orders  *orders.Service
	chats   *conversation.Manager
	syncer  *syncer.Synchronizer
}

func newEnv() (*env, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON, Output: os.Stderr})

	policy, err := orders.ParseCompletionPolicy(cfg.CompletionPolicy)
	if err != nil {
		return nil, err
	}

	store, err := session.OpenBoltStore(cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	bus := events.NewBus()
	api := transport.New(transport.Options{
		BaseURL:         cfg.APIBaseURL,
		RequestTimeout:  cfg.RequestTimeout,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	})
	sess, err := session.NewManager(store, api.RefreshTokens, bus)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	api.SetCredentials(sess)

	svc := orders.NewService(api, api, bus, orders.NewPolicy(policy))
	e := &env{
		cfg:     cfg,
		bus:     bus,
		store:   store,
		session: sess,
		api:     api,
		orders:  svc,
		chats: conversation.NewManager(api, svc, sess, bus, conversation.Config{
			WSBaseURL:    cfg.WSBaseURL,
			DialTimeout:  cfg.DialTimeout,
			SendTimeout:  cfg.SendTimeout,
			PollInterval: cfg.ChatPollInterval,
		}),
		syncer: syncer.New(api, svc, sess, bus, syncer.Config{
			RequestTimeout:   cfg.RequestTimeout,
			MaxNotifications: cfg.MaxNotifications,
		}),
	}

	// polling never outlives the session
	sess.Subscribe(func(s domain.Session) {
		if !s.Authenticated() {
			e.syncer.Stop()
		}
	})
	return e, nil
}

func (e *env) close() {
	e.syncer.Stop()
	<-e.syncer.Done()
	e.bus.Close()
	_ = e.store.Close()
}

// actor returns the signed-in user or fails when there is none.
func (e *env) actor() (domain.Actor, error) {
	s := e.session.Get()
	if !s.Authenticated() {
		return domain.Actor{}, fmt.Errorf("%w: run `marketcli login` first", domain.ErrUnauthorized)
	}
	return s.Actor(), nil
}

// withEnv runs fn with a fresh client core and a context cancelled on Ctrl+C.
func withEnv(fn func(ctx context.Context, e *env) error) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, e); err != nil {
		return explain(err)
	}
	return nil
}

// explain replaces err with its user-facing text; the cause goes to the debug log.
func explain(err error) error {
	logger.Logger.Debug().Err(err).Msg("command failed")
	return errors.New(domain.UserMessage(err))
}
