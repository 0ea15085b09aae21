// Command botcore is the composition root: it loads configuration, wires
// every collaborator package together, and runs the HTTP webhook surface
// and protocol-client supervisor until terminated.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediarelay/botcore/internal/botui"
	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/config"
	"github.com/mediarelay/botcore/internal/coordinator"
	"github.com/mediarelay/botcore/internal/dispatcher"
	"github.com/mediarelay/botcore/internal/driveprovider"
	"github.com/mediarelay/botcore/internal/driverepo"
	"github.com/mediarelay/botcore/internal/durablequeue"
	"github.com/mediarelay/botcore/internal/events"
	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/kvproviders/cloudflare"
	"github.com/mediarelay/botcore/internal/kvproviders/upstash"
	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
	"github.com/mediarelay/botcore/internal/pipeline"
	"github.com/mediarelay/botcore/internal/protocolclient"
	"github.com/mediarelay/botcore/internal/ratelimit"
	"github.com/mediarelay/botcore/internal/settings"
	"github.com/mediarelay/botcore/internal/taskrepo"
	"github.com/mediarelay/botcore/internal/webhookrouter"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := logging.New("botcore")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("botcore: config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	facade := kv.New(log,
		cloudflare.New(log, cfg.CFKVAccountID, cfg.CFKVNamespaceID, cfg.CFKVAPIToken),
		upstash.New(log, cfg.UpstashRedisRESTURL, cfg.UpstashRedisRESTToken),
	)
	go facade.RunRecoveryLoop(ctx, cfg.HeartbeatInterval)

	coord := coordinator.New(log, facade, hostname(), os.Getenv("REGION"))
	if err := coord.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("botcore: coordinator start failed")
	}
	go coord.RunLeaderRenewalLoop(ctx, cfg.LeaderLockTTL, func() {
		log.Warn().Msg("botcore: lost leadership")
	})

	repo := taskrepo.NewD1Store(log, cfg.CFD1AccountID, cfg.CFD1DatabaseID, cfg.CFD1APIToken)
	buffer := taskrepo.NewBuffer(log, repo, cfg.WriteCoalesceWindow)
	go buffer.Run(ctx)

	queue := durablequeue.New(log, cfg.QueueWebhookBase, cfg.QueueSigningKey)
	bus := events.NewEventBus(0)
	ratel := ratelimit.NewRegistry()

	drives := driveprovider.NewFactory(
		driveprovider.NewS3Provider(log),
		driveprovider.NewAzureProvider(log),
	)
	driveRepo := driverepo.New(facade)

	settingsStore := settings.New(facade)
	if err := settingsStore.SetAccessMode(ctx, models.AccessMode(cfg.AccessMode)); err != nil {
		log.Fatal().Err(err).Msg("botcore: seeding access_mode failed")
	}

	client, err := newChatClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("botcore: no chat-protocol client configured")
	}

	tasks := pipeline.NewTaskManager(pipeline.Deps{
		Repo:               repo,
		Buffer:             buffer,
		Coordinator:        coord,
		Queue:              queue,
		Chat:               client,
		Drives:             drives,
		DriveLookup:        driveRepo,
		Bus:                bus,
		RateLimit:          ratel,
		Log:                log,
		DownloadDir:        cfg.DownloadDir,
		TaskLockTTL:        cfg.TaskLockTTL,
		MinDownloadWorkers: 1,
		MaxDownloadWorkers: 8,
		MinUploadWorkers:   1,
		MaxUploadWorkers:   8,
	})
	tasks.Start(ctx)

	sessions := botui.NewSessions(facade)
	driveFlow := botui.NewDriveConfigFlow(facade, driveRepo, sessions, client)
	files := botui.NewFileBrowser(repo, client)
	commands := botui.NewCommands(client, driveFlow, files, tasks, repo, driveRepo)

	guard := dispatcher.NewGuard(cfg.OwnerID, settingsStore, settingsStore)
	disp := dispatcher.New(log, coord, guard, dispatcher.Handlers{
		Tasks:    tasks,
		Sessions: sessions,
		Drive:    driveFlow,
		Files:    files,
		Commands: commands,
	}, cfg.GroupWindow, cfg.GroupMaxWait)

	handler := webhookrouter.New(log, queue, tasks, nil)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", server.Addr).Msg("botcore: webhook listener bind failed")
	}
	go func() {
		log.Info().Int("port", cfg.Port).Msg("botcore: webhook server listening")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("botcore: webhook server failed")
		}
	}()

	breaker := protocolclient.NewBreaker(log, cfg.CircuitBreakerOpen)
	supervisor := protocolclient.NewSupervisor(client, coord, breaker, log, cfg.LeaderLockTTL)
	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("botcore: protocol supervisor exited")
		}
	}()
	go pumpEvents(ctx, log, client, disp)

	<-ctx.Done()
	log.Info().Msg("botcore: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("botcore: webhook server shutdown error")
	}
	buffer.Flush(shutdownCtx)
}

// pumpEvents drains the chat client's inbound event channel into the
// Dispatcher for as long as ctx is live; Supervisor only owns the
// connection's lifecycle, not event delivery.
func pumpEvents(ctx context.Context, log *logging.Logger, client chatclient.Client, disp *dispatcher.Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Events():
			if !ok {
				return
			}
			if err := disp.HandleEvent(ctx, msg); err != nil {
				log.Error().Err(err).Str("chatId", msg.ChatID).Msg("botcore: event handling failed")
			}
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
