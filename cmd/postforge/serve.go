package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"postforge/internal/agent"
	"postforge/internal/cache"
	"postforge/internal/config"
	"postforge/internal/handlers"
	"postforge/internal/metrics"
	"postforge/internal/middleware"
	"postforge/internal/router"
	"postforge/internal/schedule"
	"postforge/internal/session"
	"postforge/internal/studio"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the studio HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogger(cfg)
			return serve(cmd.Context(), cfg)
		},
	}
}

// setupLogger installs the default slog logger: text in development,
// JSON everywhere else.
func setupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsDev() {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(h))
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"agent_api", cfg.AgentAPIURL,
		"scheduler_api", cfg.SchedulerAPIURL,
	)

	// Connect to Valkey (session store).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		return err
	}
	defer valkeyClient.Close()

	// In non-development environments, mark cookies as Secure (HTTPS-only).
	secureCookies := !cfg.IsDev()
	sessionStore := session.NewStore(valkeyClient, secureCookies)

	m := metrics.New()

	agents := agent.Directory{
		Orchestrator: cfg.OrchestratorID,
		Visual:       cfg.VisualID,
		Judge:        cfg.JudgeID,
	}
	if err := agents.Validate(); err != nil {
		return err
	}

	manager := studio.NewManager(studio.Config{
		Agents: agent.NewHTTPGateway(agent.HTTPConfig{
			BaseURL: cfg.AgentAPIURL,
			APIKey:  cfg.AgentAPIKey,
		}),
		Directory: agents,
		Scheduler: schedule.NewHTTPGateway(schedule.HTTPConfig{
			BaseURL: cfg.SchedulerAPIURL,
			APIKey:  cfg.AgentAPIKey,
		}),
		ScheduleID:     cfg.ScheduleID,
		ScheduleCron:   cfg.ScheduleCron,
		ScheduleTZ:     cfg.ScheduleTimezone,
		StageRecorder:  m,
		ToggleRec:      m,
		OnSessionCount: m.SessionCount,
	})
	defer manager.Close()

	if cfg.OperatorPasswordHash == "" {
		slog.Warn("no operator password hash configured: any password signs in (development only)")
	}

	studioHandlers := handlers.NewStudio(manager)
	stream := handlers.NewStream(studioHandlers)
	authHandlers := handlers.NewAuth(sessionStore, manager, handlers.Operator{
		Email:        cfg.OperatorEmail,
		PasswordHash: cfg.OperatorPasswordHash,
		TOTPSecret:   cfg.OperatorTOTPSecret,
	}, cfg.IsDev())

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer loginLimiter.Stop()
	stageLimiter := middleware.NewRateLimiter(30, time.Minute)
	defer stageLimiter.Stop()

	r := router.New(router.Deps{
		Sessions:      sessionStore,
		Auth:          authHandlers,
		Studio:        studioHandlers,
		Schedule:      handlers.NewSchedule(studioHandlers),
		Stream:        stream,
		Metrics:       m.Handler(),
		LoginLimiter:  loginLimiter,
		StageLimiter:  stageLimiter,
		SecureCookies: secureCookies,
	})

	// WriteTimeout must accommodate stage endpoints that wait on remote
	// agents (several minutes for a full orchestrator run).
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      6 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Hijacked stream connections are not drained by Shutdown.
	stream.Close()

	// Give active requests up to 30 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}
