package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/noteforge/core/clock"
	appconfig "github.com/noteforge/core/internal/config"
	"github.com/noteforge/core/internal/logging"
	"github.com/noteforge/core/internal/persistence/sqlite"
	"github.com/noteforge/core/internal/transport"
	"github.com/noteforge/core/crypto"
	"github.com/noteforge/core/scheduler"
	"github.com/noteforge/core/store"
	"github.com/noteforge/core/syncengine"
)

// mode mirrors the three-state login status a REPL session can be in.
type mode string

const (
	modeOffline  mode = "offline"
	modeOnline   mode = "online"
	modeDisabled mode = "disabled"
)

// pinger is satisfied by transport.HTTPTransport; narrowed here so the
// online-status watcher doesn't need the concrete transport type.
type pinger interface {
	Ping(ctx context.Context) error
}

// app bundles one session's wiring: config, the model store, the sync
// engine, and the derived key hierarchy once a user has logged in.
type app struct {
	cfg       *appconfig.Config
	logger    logging.Logger
	db        *sqlite.Store
	store     *store.Store
	engine    *syncengine.Engine
	transport pinger
	reader    *bufio.Reader

	keys       *crypto.Keys
	userName   string
	mode       mode
	registered map[string]crypto.AuthParams
}

func newApp(ctx context.Context, cfg *appconfig.Config) (*app, error) {
	logger := logging.NewSlogLogger(slog.Default())

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	st := store.New(clock.Real{}, scheduler.Immediate{}, logger)

	tr := transport.New(cfg.ServerEndpointAddr, func() string { return "" })
	a := &app{
		cfg: cfg, logger: logger, db: db, store: st, transport: tr,
		reader:     bufio.NewReader(os.Stdin),
		registered: map[string]crypto.AuthParams{},
	}

	engine := syncengine.New(st, tr, clock.Real{}, logger, syncengine.Config{
		ProtocolVersion:   crypto.V003,
		PerRequestCap:     cfg.PerRequestCap,
		PageLimit:         cfg.PageLimit,
		WatchdogThreshold: cfg.WatchdogThreshold,
		WatchdogTick:      cfg.WatchdogTick,
		ReentryDelay:      cfg.ReentryDelay,
	})
	engine.SetPersistence(db)
	engine.SetKeysProvider(func() (*crypto.Keys, bool) { return a.keys, a.keys != nil })
	a.engine = engine

	if err := engine.LoadLocal(ctx, cfg.BulkLoadChunkSize); err != nil {
		return nil, fmt.Errorf("load local items: %w", err)
	}

	return a, nil
}

func (a *app) close() error {
	return a.db.Close()
}

func (a *app) loggedIn() bool { return a.keys != nil }

// setMode switches the session's online/offline indicator, logging once
// per actual transition rather than on every poll tick.
func (a *app) setMode(m mode) {
	if a.mode != m {
		a.mode = m
		a.logger.Info(context.Background(), "switched mode", "mode", string(m))
	}
}

func (a *app) status() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.mode != "" {
		s += string(a.mode)
	}
	if a.engine.LocalError() != nil {
		s += " local-error"
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}
