package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"streamhub/internal/core/ports"
	"streamhub/internal/core/services"
	httphandlers "streamhub/internal/handlers/http"
	"streamhub/internal/infrastructure/distributed"
	"streamhub/internal/infrastructure/middleware"
	"streamhub/internal/infrastructure/monitoring"
	"streamhub/internal/infrastructure/reliability"
	"streamhub/internal/infrastructure/repositories"
	"streamhub/internal/infrastructure/signal"
	"streamhub/pkg/config"
	ctxlog "streamhub/pkg/logger"
	"streamhub/pkg/moderation"
	"streamhub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// server owns every long-lived component of the signaling process.
type server struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	router *gin.Engine

	tracer     *tracing.TracerProvider
	repos      *repositories.RepositoryFactory
	presence   *services.PresenceService
	ws         *signal.WebSocketServer
	bus        *distributed.EventBus
	identities *services.CachedIdentityStore
}

func newServer(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*server, error) {
	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "streamhub-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	repos, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open repositories: %w", err)
	}

	// Stores are wrapped with retry and a circuit breaker before anything
	// else sees them.
	retryCfg, cbCfg := reliability.Policies(cfg)
	chatStore := reliability.NewChatStore(repos.ChatStore(), retryCfg, cbCfg, log)
	viewerStore := reliability.NewViewerCountStore(repos.ViewerCountStore(), retryCfg, cbCfg, log)
	identityStore := reliability.NewIdentityStore(repos.IdentityStore(), retryCfg, cbCfg, log)
	cachedIdentities := services.NewCachedIdentityStore(identityStore, cfg.Storage.IdentityCacheTTL)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var metrics ports.RealtimeMetrics = services.NopMetrics{}
	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(registry)
		gatherer = registry
	}

	censor := []rune(cfg.Chat.CensorChar)[0]
	moderator, err := moderation.New(cfg.Chat.CensoredWords, censor)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("build moderator: %w", err)
	}

	rooms := services.NewRoomRegistry()
	broadcaster := services.NewBroadcaster(rooms, metrics, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cachedIdentities)
	chat := services.NewChatService(chatStore, moderator, metrics, services.ChatConfig{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		HistoryLimit:     cfg.Signal.HistoryLimit,
		PersistTimeout:   cfg.Signal.PersistTimeout,
	}, log)
	viewers := services.NewViewerCountSyncer(rooms, viewerStore, broadcaster, metrics, cfg.Signal.PersistTimeout, log)
	presence := services.NewPresenceService(rooms, broadcaster)

	deps := signal.SupervisorDeps{
		Auth:        authService,
		Registry:    rooms,
		Broadcaster: broadcaster,
		Chat:        chat,
		Viewers:     viewers,
		Presence:    presence,
		Metrics:     metrics,
		Policy: signal.Policy{
			DisconnectOnViolation: cfg.Signal.DisconnectOnViolation,
			CloseOnAuthFailure:    cfg.Signal.CloseOnAuthFailure,
		},
		Logger: log,
	}
	if cfg.RateLimiting.Enabled {
		deps.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		deps.MessageBurst = cfg.RateLimiting.WebSocket.Burst
	}
	ws := signal.NewWebSocketServer(signal.NewSupervisor(deps), signal.OptionsFromConfig(cfg), log)

	s := &server{
		cfg:        cfg,
		log:        log,
		tracer:     tracer,
		repos:      repos,
		presence:   presence,
		ws:         ws,
		identities: cachedIdentities,
	}

	// A nil *EventBus must not reach the handler as a non-nil interface.
	var publisher httphandlers.NotificationPublisher
	if client := repos.RedisClient(); client != nil {
		s.bus = distributed.NewEventBus(client, cfg.Redis.NotificationChannel, instanceID(), log)
		publisher = s.bus
	}

	health := monitoring.NewHealthChecker()
	health.AddStoreCheck("storage", repos, cfg.Monitoring.HealthTimeout)
	if client := repos.RedisClient(); client != nil {
		health.AddRedisCheck(client, cfg.Monitoring.HealthTimeout)
	}
	health.AddBreakerCheck(chatStore.Stats)
	health.AddBreakerCheck(viewerStore.Stats)
	health.AddBreakerCheck(identityStore.Stats)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLogger(ctxlog.NewContextLogger(log)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	router.GET("/ws", middleware.NewWebSocketConnectLimitMiddleware(cfg), gin.WrapF(ws.HandleWebSocket))
	httphandlers.NewHealthHandler(health, gatherer).SetupRoutes(router)
	httphandlers.NewRealtimeHandler(presence, publisher, log).SetupRoutes(router, authService)
	httphandlers.NewAuthHandler(authService, repos.IdentityStore(), cfg.Auth.AccessTokenTTL, cachedIdentities.Invalidate).
		SetupRoutes(router, authService)

	s.router = router
	return s, nil
}

// run serves HTTP until ctx is cancelled or the listener fails, then shuts
// everything down.
func (s *server) run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	if s.bus != nil {
		go func() {
			err := s.bus.Subscribe(ctx, distributed.Relay(s.presence, s.log))
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Errorw("Notification bus stopped", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		s.log.Infof("Starting streamhub signaling server on %s", s.cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = err
	case <-ctx.Done():
		s.log.Info("Shutting down streamhub signaling server...")
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Sockets are hijacked so srv.Shutdown does not wait for them; the
	// websocket server does, and the stores stay open until it returns.
	if err := s.ws.Shutdown(shutdownCtx); err != nil {
		s.log.Errorw("Timed out waiting for connections to close", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			s.log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	return errors.Join(runErr, s.close(shutdownCtx))
}

func (s *server) close(ctx context.Context) error {
	// the bus subscription closes itself once the run context is done
	s.identities.Stop()
	errs := []error{s.repos.Close()}
	if s.tracer != nil {
		errs = append(errs, s.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "signal"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
