// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package app assembles the atelier service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/internal/atelier/adapter/asset"
	"github.com/innovationmech/atelier/internal/atelier/adapter/discovery"
	"github.com/innovationmech/atelier/internal/atelier/adapter/events"
	"github.com/innovationmech/atelier/internal/atelier/adapter/notify"
	"github.com/innovationmech/atelier/internal/atelier/adapter/payment"
	"github.com/innovationmech/atelier/internal/atelier/adapter/reconcile"
	"github.com/innovationmech/atelier/internal/atelier/config"
	v1 "github.com/innovationmech/atelier/internal/atelier/handler/http/v1"
	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/repository"
	"github.com/innovationmech/atelier/internal/atelier/security"
	"github.com/innovationmech/atelier/internal/atelier/server"
	"github.com/innovationmech/atelier/internal/atelier/workflows"
	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/redisconn"
	"github.com/innovationmech/atelier/pkg/tracing"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/compensation"
	"github.com/innovationmech/atelier/pkg/workflow/engine"
	"github.com/innovationmech/atelier/pkg/workflow/idempotency"
	"github.com/innovationmech/atelier/pkg/workflow/slot"
)

// MailQueue is the NATS queue group mail relays subscribe with.
const MailQueue = "atelier-mail"

// Option overrides a collaborator that would otherwise be built from config.
type Option func(*App)

// WithRecordStore uses records instead of opening the MySQL database.
func WithRecordStore(records interfaces.RecordStore) Option {
	return func(a *App) { a.records = records }
}

// WithAssetStore uses assets instead of the configured media API.
func WithAssetStore(assets interfaces.AssetStore) Option {
	return func(a *App) { a.assets = assets }
}

// WithPaymentProcessor uses payments instead of the configured provider.
func WithPaymentProcessor(payments interfaces.PaymentProcessor) Option {
	return func(a *App) { a.payments = payments }
}

// WithNotifier uses notifier instead of the configured mail backend.
func WithNotifier(notifier interfaces.Notifier) Option {
	return func(a *App) { a.notifier = notifier }
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App owns every long-lived component of the service.
type App struct {
	config *config.Config
	logger *zap.Logger

	records  interfaces.RecordStore
	assets   interfaces.AssetStore
	payments interfaces.PaymentProcessor
	notifier interfaces.Notifier

	redis    *redis.Client
	natsMu   sync.Mutex
	natsConn map[string]*nats.Conn

	store    idempotency.Store
	slots    slot.Manager
	relay    *notify.Relay
	registry *prometheus.Registry
	engine   *engine.Engine
	deps     workflows.Deps
	server   *server.Server

	closers []closer
}

// New builds the service. Components already created are released when a
// later one fails.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	a := &App{
		config:   cfg,
		logger:   logger.GetLogger().Named("app"),
		natsConn: make(map[string]*nats.Conn),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.build(ctx); err != nil {
		a.release(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) build(ctx context.Context) error {
	cfg := a.config

	provider, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	provider.SetGlobal()
	a.onClose("tracing", provider.Shutdown)

	var checks []server.Option
	if cfg.Store.Backend == config.BackendRedis || cfg.Slots.Backend == config.BackendRedis {
		client, err := redisconn.Connect(ctx, cfg.Store.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		if cfg.Store.Backend != config.BackendRedis {
			a.onClose("redis", func(context.Context) error { return client.Close() })
		}
		checks = append(checks, server.WithHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	if a.store, err = a.buildStore(ctx); err != nil {
		return err
	}
	a.onClose("idempotency store", func(context.Context) error { return a.store.Close() })

	a.slots = a.buildSlots()

	if a.records == nil {
		db, err := repository.Open(repository.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			AutoMigrate:     cfg.Database.AutoMigrate,
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		a.onClose("database", func(context.Context) error { return sqlDB.Close() })
		checks = append(checks, server.WithHealthCheck("database", sqlDB.PingContext))
		a.records = repository.NewRecordStore(db)
	}

	if a.assets == nil {
		if a.assets, err = asset.NewStore(asset.Config{
			APIBaseURL:      cfg.Assets.APIBaseURL,
			DeliveryBaseURL: cfg.Assets.DeliveryBaseURL,
			CloudName:       cfg.Assets.CloudName,
			APIKey:          cfg.Assets.APIKey,
			APISecret:       cfg.Assets.APISecret,
			Folder:          cfg.Assets.Folder,
			Timeout:         cfg.Assets.Timeout,
		}, nil); err != nil {
			return fmt.Errorf("asset store: %w", err)
		}
	}

	if a.payments == nil {
		if a.payments, err = payment.NewClient(ctx, payment.Config{
			BaseURL:      cfg.Payment.BaseURL,
			ClientID:     cfg.Payment.ClientID,
			ClientSecret: cfg.Payment.ClientSecret,
			Timeout:      cfg.Payment.Timeout,
		}, nil); err != nil {
			return fmt.Errorf("payment client: %w", err)
		}
	}

	if a.notifier == nil {
		if a.notifier, err = a.buildNotifier(); err != nil {
			return err
		}
	}

	publisher, err := a.buildPublisher()
	if err != nil {
		return err
	}

	var reporter compensation.Reporter
	if cfg.Sentry.Enabled {
		sentryReporter, err := reconcile.NewSentryReporter(reconcile.Config{
			DSN:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     cfg.Sentry.Release,
		})
		if err != nil {
			return fmt.Errorf("sentry: %w", err)
		}
		a.onClose("sentry", func(context.Context) error {
			sentryReporter.Flush(2 * time.Second)
			return nil
		})
		reporter = sentryReporter
	}

	checker, err := a.buildChecker(ctx)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := engine.NewPrometheusMetricsCollector(&engine.PrometheusMetricsConfig{Registerer: a.registry})
	if err != nil {
		return err
	}

	registryOpts := []compensation.Option{compensation.WithLogger(a.logger.Named("compensation"))}
	if reporter != nil {
		registryOpts = append(registryOpts, compensation.WithReporter(reporter))
	}
	a.engine, err = engine.New(a.store, cfg.Workflow.Config,
		engine.WithCompensationRegistry(compensation.NewRegistry(registryOpts...)),
		engine.WithCapabilityChecker(checker),
		engine.WithEventPublisher(publisher),
		engine.WithMetrics(metrics),
		engine.WithTracerProvider(provider.TracerProvider()),
	)
	if err != nil {
		return err
	}

	a.deps = workflows.Deps{
		Assets:   a.assets,
		Payments: a.payments,
		Records:  a.records,
		Notifier: a.notifier,
		Slots:    a.slots,
		Policy: workflows.BookingPolicy{
			Resource:  cfg.Slots.Resource,
			OpenHour:  cfg.Slots.OpenHour,
			CloseHour: cfg.Slots.CloseHour,
			OnePerDay: cfg.Slots.OnePerDay,
		},
		AdminEmail: cfg.Notify.AdminEmail,
	}
	if err := workflows.Register(a.engine, a.deps); err != nil {
		return err
	}

	for url, conn := range a.natsConn {
		checks = append(checks, server.WithHealthCheck("nats "+url, func(context.Context) error {
			if !conn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}))
	}

	handler := v1.NewHandler(a.engine, a.deps, cfg.Server.MaxUploadBytes)
	a.server = server.New(server.Config{
		Addr:            cfg.Server.Addr,
		Mode:            cfg.Server.Mode,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}, []server.RouteRegistrar{handler}, append(checks, server.WithGatherer(a.registry))...)

	a.logger.Info("service assembled",
		zap.Strings("workflows", a.engine.Definitions()),
		zap.String("store", cfg.Store.Backend),
		zap.String("slots", cfg.Slots.Backend),
		zap.String("notify", cfg.Notify.Backend),
		zap.String("events", cfg.Events.Backend),
	)
	return nil
}

func (a *App) buildStore(ctx context.Context) (idempotency.Store, error) {
	cfg := a.config
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return idempotency.NewRedisStore(a.redis, cfg.Store.Redis.KeyPrefix, cfg.Workflow.Retention), nil
	case config.BackendPostgres:
		store, err := idempotency.NewPostgresStore(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres idempotency store: %w", err)
		}
		return store, nil
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

func (a *App) buildSlots() slot.Manager {
	cfg := a.config.Slots
	if cfg.Backend == config.BackendRedis {
		return slot.NewRedisManager(a.redis, a.config.Store.Redis.KeyPrefix, cfg.HoldWindow)
	}
	return slot.NewMemoryManager(slot.WithHoldWindow(cfg.HoldWindow), slot.WithSweepInterval(cfg.SweepInterval))
}

// connectNATS returns a shared connection per server URL.
func (a *App) connectNATS(url string) (*nats.Conn, error) {
	a.natsMu.Lock()
	defer a.natsMu.Unlock()
	if conn, ok := a.natsConn[url]; ok {
		return conn, nil
	}
	log := a.logger.Named("nats")
	conn, err := nats.Connect(url,
		nats.Name("atelier"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.String("url", url), zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	a.natsConn[url] = conn
	a.onClose("nats "+url, func(context.Context) error {
		conn.Close()
		return nil
	})
	return conn, nil
}

func (a *App) smtpNotifier() (*notify.SMTPNotifier, error) {
	cfg := a.config.Notify.SMTP
	templates, err := notify.LoadTemplates()
	if err != nil {
		return nil, err
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, templates)
}

// buildNotifier selects the mail backend. With NATS, steps enqueue jobs and
// a relay in this process delivers them over SMTP.
func (a *App) buildNotifier() (interfaces.Notifier, error) {
	cfg := a.config.Notify
	switch cfg.Backend {
	case config.BackendNATS:
		conn, err := a.connectNATS(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		sender, err := a.smtpNotifier()
		if err != nil {
			return nil, err
		}
		a.relay = notify.NewRelay(conn, cfg.NATS.Subject, MailQueue, sender)
		return notify.NewNATSNotifier(conn, cfg.NATS.Subject), nil
	case config.BackendNone:
		return notify.Discard{Logger: a.logger.Named("notify")}, nil
	default:
		return a.smtpNotifier()
	}
}

func (a *App) buildPublisher() (workflow.EventPublisher, error) {
	cfg := a.config.Events
	switch cfg.Backend {
	case config.BackendNATS:
		conn, err := a.connectNATS(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		return events.NewNATSPublisher(conn, cfg.NATS.Subject), nil
	case config.BackendKafka:
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return nil, err
		}
		a.onClose("kafka", func(context.Context) error { return publisher.Close() })
		return publisher, nil
	case config.BackendAMQP:
		publisher, err := events.NewAMQPPublisher(events.AMQPConfig{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.Exchange,
		})
		if err != nil {
			return nil, err
		}
		a.onClose("amqp", func(context.Context) error { return publisher.Close() })
		return publisher, nil
	default:
		return workflow.NoopPublisher{}, nil
	}
}

// buildChecker chains the configured credential checks. With a policy
// file, token scopes are judged by the policy instead of matched directly.
func (a *App) buildChecker(ctx context.Context) (workflow.CapabilityChecker, error) {
	cfg := a.config.Security
	var chain security.Chain
	if cfg.JWTSecret != "" {
		tokens, err := security.NewJWTChecker(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("jwt checker: %w", err)
		}
		if cfg.PolicyFile != "" {
			policy, err := security.LoadPolicyChecker(ctx, tokens, cfg.PolicyFile)
			if err != nil {
				return nil, err
			}
			chain = append(chain, policy)
		} else {
			chain = append(chain, tokens)
		}
	}
	if cfg.AdminSecretHash != "" {
		checker, err := security.NewSecretChecker(cfg.AdminSecretHash)
		if err != nil {
			return nil, fmt.Errorf("admin secret: %w", err)
		}
		chain = append(chain, checker)
	}
	if len(chain) == 0 {
		a.logger.Warn("no credential checker configured; privileged workflows will be rejected")
	}
	return chain, nil
}

// Engine returns the workflow engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Run starts the background workers and serves HTTP until ctx is done or
// the server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		idempotency.RunJanitor(workerCtx, a.store, a.config.Workflow.JanitorInterval, a.config.Workflow.Retention)
	}()
	if memory, ok := a.slots.(*slot.MemoryManager); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			memory.Start(workerCtx)
		}()
	}
	if a.relay != nil {
		if err := a.relay.Start(); err != nil {
			cancel()
			wg.Wait()
			a.release(context.WithoutCancel(ctx))
			return fmt.Errorf("start mail relay: %w", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	var registrar *discovery.Registrar
	if d := a.config.Discovery; d.Enabled {
		r, err := discovery.NewRegistrar(discovery.Config{
			ConsulAddress: d.ConsulAddress,
			ServiceName:   d.ServiceName,
			Address:       d.AdvertiseAddress,
			Port:          d.AdvertisePort,
			Tags:          d.Tags,
		})
		if err == nil {
			err = r.Register()
		}
		if err != nil {
			a.logger.Warn("service registration failed", zap.Error(err))
		} else {
			registrar = r
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-serverErr:
		if runErr != nil {
			a.logger.Error("HTTP server failed", zap.Error(runErr))
		}
	}

	if registrar != nil {
		if err := registrar.Deregister(); err != nil {
			a.logger.Warn("service deregistration failed", zap.Error(err))
		}
	}
	shutdownCtx := context.WithoutCancel(ctx)
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
	cancel()
	wg.Wait()
	a.release(shutdownCtx)
	return runErr
}

// release stops accepting work and closes components in reverse build order.
func (a *App) release(ctx context.Context) {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.relay != nil {
		if err := a.relay.Stop(); err != nil {
			a.logger.Warn("mail relay stop failed", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

// Close releases every component without running the server.
func (a *App) Close(ctx context.Context) {
	a.release(ctx)
}
