package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/voxroom/internal/adapters/http"
	"github.com/dkeye/voxroom/internal/adapters/rtc"
	"github.com/dkeye/voxroom/internal/adapters/store"
	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/app/orch"
	"github.com/dkeye/voxroom/internal/config"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/transcript"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and signaling server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	config.LoadEnv()
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.port != 0 {
		cfg.Port = flags.port
	}
	configureLogging(cfg.Mode, cfg.LogLevel)
	return cfg, nil
}

func openRoomStore(ctx context.Context, cfg *config.Config) (core.RoomStore, func(), error) {
	if cfg.RedisURL == "" {
		return store.NewMemory(), func() {}, nil
	}
	rs, err := store.NewRedis(ctx, cfg.RedisURL, cfg.Rooms.StoreTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("room store: %w", err)
	}
	log.Info().Str("module", "main").Msg("room store: redis")
	return rs, func() { _ = rs.Close() }, nil
}

func openTranscripts(cfg *config.Config) (transcript.Store, error) {
	if cfg.DatabaseURL == "" {
		return transcript.NewMemoryStore(), nil
	}
	ts, err := transcript.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store: %w", err)
	}
	log.Info().Str("module", "main").Msg("transcript store: postgres")
	return ts, nil
}

func policyFor(name string) app.Policy {
	if name == "drop" {
		return app.TolerantPolicy{}
	}
	return app.SimplePolicy{}
}

func serve(ctx context.Context, cfg *config.Config) error {
	rooms, closeRooms, err := openRoomStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRooms()
	transcripts, err := openTranscripts(cfg)
	if err != nil {
		return err
	}

	ice := rtc.Configuration(cfg.WebRTCServers())
	if err := rtc.Validate(ice); err != nil {
		log.Warn().Err(err).Str("module", "main").Msg("ice configuration rejected by pion")
	}

	o := orch.New(orch.Deps{
		Registry:    app.NewRegistry(),
		Rooms:       app.NewRoomManager(cfg.Rooms.DefaultCapacity, cfg.Rooms.MaxCapacity),
		Policy:      policyFor(cfg.Rooms.Policy),
		Store:       rooms,
		Transcripts: transcripts,
	}, orch.Config{
		ICEServers:       ice.ICEServers,
		AI:               cfg.AI.FactoryConfig,
		AISessionTimeout: cfg.AI.SessionTimeout,
		IdleTTL:          cfg.Rooms.IdleTTL,
		JanitorInterval:  cfg.Rooms.JanitorInterval,
		SystemPrompt:     cfg.AI.SystemPrompt,
		Context:          cfg.Context,
	})
	defer o.Shutdown()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Voxroom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return o.RunJanitor(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
