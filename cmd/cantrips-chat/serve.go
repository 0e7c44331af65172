package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/cantrips"
	"github.com/luciancaetano/cantrips/chat"
	"github.com/luciancaetano/cantrips/internal/config"
	"github.com/luciancaetano/cantrips/internal/metrics"
	"github.com/luciancaetano/cantrips/internal/nhooyrws"
	"github.com/luciancaetano/cantrips/internal/websocket"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
	"github.com/luciancaetano/cantrips/ws"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

// serveCmd runs the chat server until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		logger := cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// serve builds the chat server from cfg and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New("cantrips")

	validator, err := buildValidator(cfg.Chat)
	if err != nil {
		return err
	}
	if validator == nil {
		logger.Warn("No users configured and anonymous login disabled; every login will be rejected")
	}

	chatCfg := chat.Config{
		Validator: validator,
		Policy:    buildPolicy(cfg.Chat),
		Channels:  cfg.Chat.Channels,
		Sessions:  m,
		Logger:    logger,
	}
	if len(cfg.Protocol.Extensions) > 0 {
		chatCfg.Extensions = []messaging.Provider{cfg.Protocol.Extensions.Clone()}
	}
	srv, err := chat.NewServer(chatCfg)
	if err != nil {
		return fmt.Errorf("failed to create chat server: %w", err)
	}

	proto, err := srv.Protocol(
		protocol.WithStrict(cfg.Server.Strict),
		protocol.WithObserver(m),
		protocol.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create protocol: %w", err)
	}
	logger.Info("Protocol ready",
		"namespaces", proto.Namespaces().Namespaces(),
		"strict", proto.Strict(),
		"engine", cfg.Server.Engine)

	if cfg.Server.Engine == config.EngineNhooyr {
		return serveNhooyr(ctx, cfg, proto, m, logger)
	}
	return serveGorilla(ctx, cfg, proto, m, logger)
}

func serveGorilla(ctx context.Context, cfg *config.Config, proto *protocol.Protocol, m *metrics.Metrics, logger *slog.Logger) error {
	checkOrigin := ws.AllOrigins()
	if len(cfg.Server.AllowedOrigins) > 0 {
		checkOrigin = ws.AllowedOrigins(cfg.Server.AllowedOrigins...)
	}

	server := websocket.New(&websocket.ServerConfig{
		Addr:            cfg.Server.Addr,
		Path:            cfg.Server.Path,
		Protocol:        proto,
		RateLimitConfig: rateLimit(cfg.RateLimit),
		CheckOrigin:     checkOrigin,
		MaxFrameSize:    cfg.Server.MaxFrameSize,
		Metrics:         m.Handler(),
		MetricsPath:     cfg.Server.MetricsPath,
		Logger:          logger,
		OnClientDisconnect: func(client cantrips.Client, voluntary bool) {
			logger.Debug("Client disconnected", "client_id", client.ID(), "voluntary", voluntary)
		},
	})
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	logger.Info("Shutting down", "connections", server.ClientCount())
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(stopCtx)
}

func serveNhooyr(ctx context.Context, cfg *config.Config, proto *protocol.Protocol, m *metrics.Metrics, logger *slog.Logger) error {
	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	nc := nhooyrws.Config{
		Protocol:       proto,
		OriginPatterns: origins,
		MaxFrameSize:   cfg.Server.MaxFrameSize,
		Logger:         logger,
	}
	if cfg.RateLimit.Enabled {
		nc.Limit = rate.Limit(cfg.RateLimit.MessagesPerSecond)
		nc.Burst = cfg.RateLimit.Burst
	}
	handler := nhooyrws.NewHandler(nc)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, handler)
	mux.Handle(cfg.Server.MetricsPath, m.Handler())
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", cfg.Server.Addr, "path", cfg.Server.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down", "connections", handler.Len())
	handler.CloseAll(1001, "server shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(stopCtx)
}

func buildValidator(cfg config.ChatConfig) (chat.Validator, error) {
	var validators []chat.Validator
	if len(cfg.Users) > 0 {
		pv, err := chat.NewPasswordValidator(cfg.Passwords())
		if err != nil {
			return nil, fmt.Errorf("chat.users: %w", err)
		}
		validators = append(validators, pv)
	}
	if cfg.AllowAnonymous {
		// configured names always need their password
		known := cfg.Passwords()
		anonymous := chat.AnyValidator()
		validators = append(validators, chat.ValidatorFunc(func(username, password string) (string, bool) {
			if _, ok := known[username]; ok {
				return "", false
			}
			return anonymous.Validate(username, password)
		}))
	}

	switch len(validators) {
	case 0:
		return nil, nil
	case 1:
		return validators[0], nil
	default:
		return chat.FirstOf(validators...), nil
	}
}

func buildPolicy(cfg config.ChatConfig) chat.Policy {
	all := chat.AllowAllPolicy()
	policy := chat.DenyAllPolicy()
	if cfg.AllowCreate {
		policy.AllowCreate = all.AllowCreate
	}
	if cfg.AllowClose {
		policy.AllowClose = all.AllowClose
	}
	return policy
}

func rateLimit(cfg config.RateLimitConfig) *websocket.RateLimitConfig {
	if !cfg.Enabled {
		return websocket.NoRateLimit()
	}
	return &websocket.RateLimitConfig{
		MessagesPerSecond: rate.Limit(cfg.MessagesPerSecond),
		Burst:             cfg.Burst,
		Enabled:           true,
	}
}
