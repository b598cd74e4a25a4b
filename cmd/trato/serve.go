package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"
	"github.com/spf13/cobra"

	"github.com/mbeoliero/trato/internal/booking"
	"github.com/mbeoliero/trato/internal/config"
	"github.com/mbeoliero/trato/internal/gateway"
	"github.com/mbeoliero/trato/internal/handler"
	"github.com/mbeoliero/trato/internal/notify"
	"github.com/mbeoliero/trato/internal/repository"
	"github.com/mbeoliero/trato/internal/router"
	"github.com/mbeoliero/trato/internal/service"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/idgen"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the WebSocket gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "migrate the schema before serving")
	return cmd
}

func serve(parent context.Context, configPath string, autoMigrate bool) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.CtxInfo(ctx, "config loaded: mode=%s, driver=%s", cfg.Server.Mode, cfg.Database.Driver)

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		return err
	}
	idgen.SetDefaultGenerator(gen)

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		return fmt.Errorf("database connection check failed: %w", err)
	}
	log.CtxInfo(ctx, "database connection established")

	if autoMigrate {
		if err := repository.AutoMigrate(repos.DB); err != nil {
			return err
		}
	}

	// Notification dispatcher
	sink, err := notify.NewSink(&cfg.Kafka)
	if err != nil {
		return fmt.Errorf("failed to create notification sink: %w", err)
	}
	dispatcher := notify.NewAsyncDispatcher(sink, cfg.Notify)
	dispatcher.Run(ctx)

	// Initialize services
	msgService := service.NewMessageService(repos)
	convService := service.NewConversationService(repos)
	unreadService := service.NewUnreadService(repos)

	bookings, err := booking.NewClient(&cfg.Booking)
	if err != nil {
		return err
	}
	if bookings != nil {
		convService.SetBookingDirectory(bookings)
	}

	// Initialize WebSocket server
	wsServer := gateway.NewWsServer(cfg, repos.Redis, msgService, convService, unreadService)
	msgService.SetPusher(wsServer)
	convService.SetPusher(wsServer)
	msgService.SetNotifier(dispatcher)
	convService.SetNotifier(dispatcher)

	if err := wsServer.Run(ctx); err != nil {
		return fmt.Errorf("failed to start websocket server: %w", err)
	}
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		Message:      handler.NewMessageHandler(msgService),
		Conversation: handler.NewConversationHandler(convService, unreadService, wsServer),
	}

	// Create Hertz server
	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
		server.WithExitWaitTime(shutdownTimeout),
	)
	router.SetupRouter(h, cfg, handlers, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)
	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.CtxInfo(ctx, "shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	wsServer.Shutdown(shutdownCtx)
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	if err := dispatcher.Close(); err != nil {
		log.CtxError(ctx, "notification sink close error: %v", err)
	}
	cancel()

	log.CtxInfo(ctx, "server stopped")
	return nil
}
