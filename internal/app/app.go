// Package app assembles the order intake components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"order-intake/internal/config"
	"order-intake/internal/database"
	"order-intake/internal/extractor"
	"order-intake/internal/lifecycle"
	"order-intake/internal/logging"
	"order-intake/internal/mailbox"
	"order-intake/internal/orders"
	"order-intake/internal/scheduler"
	"order-intake/internal/search"
	"order-intake/internal/store"
)

// App holds the wired components of one process
type App struct {
	Config    *config.Config
	Store     store.OrderStore
	Breaker   *mailbox.CircuitBreaker
	Scans     *scheduler.ScanCoordinator
	Lifecycle *lifecycle.Manager
	Orders    *orders.Service
	Search    *search.SearchClient
	Sweeper   *scheduler.TrashSweeper

	closeStore func() error
}

// New opens the store and builds every component. Nothing is started.
func New(cfg *config.Config) (*App, error) {
	st, closeStore, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: st, closeStore: closeStore}
	log := logging.For("app")

	var reader mailbox.Reader
	if cfg.Mailbox.Configured() {
		reader = mailbox.NewIMAPReader(mailbox.IMAPConfig{
			Addr:           cfg.Mailbox.Host,
			User:           cfg.Mailbox.User,
			Password:       cfg.Mailbox.Password,
			Folder:         cfg.Mailbox.Folder,
			AttachmentsDir: cfg.Mailbox.AttachmentsDir,
		})
		log.Infof("App: reading %s from %s as %s", cfg.Mailbox.Folder, cfg.Mailbox.Host, cfg.Mailbox.User)
	} else {
		reader = &mailbox.StaticReader{}
		log.Warn("App: mailbox credentials not set, scans will find no messages")
	}
	a.Breaker = mailbox.NewCircuitBreaker(reader, cfg.Mailbox.BreakerThreshold, cfg.Mailbox.GetBreakerReset())

	a.Scans = scheduler.NewScanCoordinator(a.Breaker, extractor.NewRuleExtractor(), st, scheduler.CoordinatorConfig{
		Interval: cfg.Scan.GetInterval(),
		Grace:    cfg.Scan.GetGrace(),
	})
	a.Lifecycle = lifecycle.NewManager(st, lifecycle.Config{RetentionDays: cfg.Trash.RetentionDays})
	a.Orders = orders.NewService(st, nil)
	a.Sweeper = scheduler.NewTrashSweeper(a.Lifecycle, cfg.Trash.SweepSchedule)

	if cfg.Search.Enabled {
		m := cfg.Search.Meilisearch
		a.Search = search.NewSearchClient(m.Host, m.APIKey, m.Index)
		if err := a.Search.InitIndex(); err != nil {
			log.Warnf("App: Failed to initialize search index: %v", err)
		}
		a.Scans.SetIndexer(a.Search)
		a.Orders.SetIndexer(a.Search)
		a.Lifecycle.SetIndexer(a.Search)
		a.Lifecycle.SetSearchRemover(a.Search)
	}

	return a, nil
}

// Reindex pushes every active order into the search index
func (a *App) Reindex(ctx context.Context) (int, error) {
	if a.Search == nil {
		return 0, errors.New("search is not enabled")
	}
	active, err := a.Orders.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(active), a.Search.IndexOrders(active)
}

// Close releases the store connection
func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}

// OpenStore connects the configured backend and makes sure its schema exists
func OpenStore(cfg config.DatabaseConfig) (store.OrderStore, func() error, error) {
	log := logging.For("app")

	switch cfg.Type {
	case "memory":
		log.Warn("App: Using in-memory store, orders are lost on restart")
		return store.NewMemoryStore(), func() error { return nil }, nil

	case "postgres":
		log.Info("App: Using PostgreSQL")
		pg := cfg.Postgres
		db, err := database.NewDB(pg.Host, portString(pg.Port, "5432"), pg.User, pg.Password, pg.Database, pg.SSLMode)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return db, db.Close, nil

	case "mysql", "":
		log.Info("App: Using MySQL with GORM")
		my := cfg.MySQL
		gdb, err := database.NewGormDB(my.Host, portString(my.Port, "3306"), my.User, my.Password, my.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		if err := gdb.InitSchema(); err != nil {
			gdb.Close()
			return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return gdb, gdb.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database type %q", cfg.Type)
}

func portString(port int, def string) string {
	if port > 0 {
		return strconv.Itoa(port)
	}
	return def
}
