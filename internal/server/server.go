// Package server assembles the service: storage engine, object store,
// journal, notification dispatcher, event bus, middleware chain and the
// HTTP listener with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/sanyexieai/sevino/internal/accesslog"
	"github.com/sanyexieai/sevino/internal/api"
	"github.com/sanyexieai/sevino/internal/config"
	"github.com/sanyexieai/sevino/internal/journal"
	"github.com/sanyexieai/sevino/internal/metrics"
	"github.com/sanyexieai/sevino/internal/middleware"
	"github.com/sanyexieai/sevino/internal/notify"
	"github.com/sanyexieai/sevino/internal/objectstore"
	"github.com/sanyexieai/sevino/internal/ratelimit"
	"github.com/sanyexieai/sevino/internal/storage"
)

type Server struct {
	cfg        *config.Config
	log        *zap.SugaredLogger
	store      *objectstore.Store
	journal    *journal.Journal
	bus        *api.EventBus
	dispatcher *notify.Dispatcher
	accessLog  *accesslog.AccessLogger
	limiter    *ratelimit.Limiter
}

// New builds all components from the config and loads the store from disk.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Server, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	engine, err := storage.NewFileSystem(cfg.Storage.DataDir, log)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		jrnl, err = journal.Open(cfg.Journal.Path, cfg.Journal.MaxEntries)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		log.Infow("journal enabled", "path", cfg.Journal.Path, "max_entries", cfg.Journal.MaxEntries)
	}

	dispatcher := notify.NewDispatcher(log, cfg.Notify.Workers, cfg.Notify.Webhooks)
	registerBackends(dispatcher, cfg.Notify, log)

	bus := api.NewEventBus()

	// Every successful mutation fans out from here. None of the sinks may
	// block the write path.
	store := objectstore.New(engine, log, func(ev objectstore.Event) {
		metrics.RecordEvent(string(ev.Type))
		if jrnl != nil {
			if err := jrnl.Record(journal.Entry{
				Time:     ev.Time.UnixNano(),
				Op:       string(ev.Type),
				Bucket:   ev.Bucket,
				Key:      ev.Key,
				ObjectID: ev.ObjectID,
				ETag:     ev.ETag,
				Size:     ev.Size,
			}); err != nil {
				log.Warnw("journal write failed", "error", err)
			}
		}
		bus.Publish(ev)
		dispatcher.Dispatch(ev)
	})

	if err := store.Load(); err != nil {
		if jrnl != nil {
			jrnl.Close()
		}
		return nil, fmt.Errorf("load store: %w", err)
	}

	var access *accesslog.AccessLogger
	if cfg.Log.AccessLog != "" {
		access, err = accesslog.NewAccessLogger(cfg.Log.AccessLog)
		if err != nil {
			if jrnl != nil {
				jrnl.Close()
			}
			return nil, fmt.Errorf("init access log: %w", err)
		}
		log.Infow("access log enabled", "path", cfg.Log.AccessLog)
	}

	var limiter *ratelimit.Limiter
	if cfg.Limits.RPS > 0 {
		limiter = ratelimit.NewLimiter(cfg.Limits.RPS, cfg.Limits.Burst)
		log.Infow("rate limiting enabled", "rps", cfg.Limits.RPS, "burst", cfg.Limits.Burst)
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(metrics.NewStoreCollector(store.ObjectCounts)); err != nil {
			log.Warnw("store collector registration failed", "error", err)
		}
	}

	return &Server{
		cfg:        cfg,
		log:        log,
		store:      store,
		journal:    jrnl,
		bus:        bus,
		dispatcher: dispatcher,
		accessLog:  access,
		limiter:    limiter,
	}, nil
}

func registerBackends(d *notify.Dispatcher, cfg config.NotifyConfig, log *zap.SugaredLogger) {
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		d.AddBackend(notify.NewKafkaBackend(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	if cfg.NATS.URL != "" && cfg.NATS.Subject != "" {
		backend, err := notify.NewNATSBackend(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Warnw("nats backend unavailable", "url", cfg.NATS.URL, "error", err)
		} else {
			d.AddBackend(backend)
		}
	}
	if cfg.Redis.Addr != "" {
		d.AddBackend(notify.NewRedisBackend(cfg.Redis.Addr, cfg.Redis.Channel, cfg.Redis.List))
	}
	if cfg.Postgres.Conn != "" {
		d.AddBackend(notify.NewPostgresBackend(log, cfg.Postgres.Conn, cfg.Postgres.Table))
	}
	if cfg.AMQP.URL != "" {
		d.AddBackend(notify.NewAMQPBackend(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey))
	}
}

// handler assembles the middleware chain around the API and metrics routes.
func (s *Server) handler() http.Handler {
	apiHandler := api.NewHandler(s.store, s.journal, s.bus, s.log)

	mux := http.NewServeMux()
	if s.cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	mux.Handle("/", apiHandler)

	var h http.Handler = mux
	h = middleware.MaxBody(s.cfg.Storage.MaxFileSize, h)
	h = middleware.RateLimit(s.limiter, h)
	h = middleware.CORS(s.cfg.CORS, h)
	h = middleware.Observe(s.accessLog, h)
	h = middleware.RequestID(h)
	h = middleware.PanicRecovery(s.log, h)
	return h
}

// Run starts the listener and blocks until SIGINT/SIGTERM or a fatal
// server error, then shuts down gracefully.
func (s *Server) Run() error {
	addr := s.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.handler(),
	}

	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	defer notifyCancel()
	s.dispatcher.Start(notifyCtx)

	s.log.Infow("sevino starting",
		"addr", addr,
		"data_dir", s.cfg.Storage.DataDir,
		"max_file_size", s.cfg.Storage.MaxFileSize,
		"cors", s.cfg.CORS.Enabled,
		"tls", s.cfg.Server.TLS.Enabled,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.listenAndServe(httpServer)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		s.log.Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		s.log.Errorw("graceful shutdown failed", "error", err)
		return err
	}

	s.log.Infow("server stopped")
	return nil
}

func (s *Server) listenAndServe(srv *http.Server) error {
	tlsCfg := s.cfg.Server.TLS
	if !tlsCfg.Enabled {
		return srv.ListenAndServe()
	}

	if tlsCfg.Auto {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(tlsCfg.CacheDir),
			HostPolicy: autocert.HostWhitelist(tlsCfg.Domains...),
		}
		srv.TLSConfig = m.TLSConfig()
		// ACME HTTP-01 challenges arrive on port 80.
		go func() {
			if err := http.ListenAndServe(":80", m.HTTPHandler(nil)); err != nil {
				s.log.Warnw("acme challenge listener failed", "error", err)
			}
		}()
		return srv.ListenAndServeTLS("", "")
	}

	return srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
}

// Close releases everything Run left open. Call after Run returns.
func (s *Server) Close() {
	s.dispatcher.Stop()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.accessLog.Close()
	if s.journal != nil {
		s.journal.Close()
	}
}
