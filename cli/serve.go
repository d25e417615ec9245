package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"engagement-engine/handlers"
	"engagement-engine/middleware"
	"engagement-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scheduler and the outbox worker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newHTTPApp builds the fiber app with gateway auth, CORS and all routes.
// Event streams close when ctx is cancelled.
func newHTTPApp(ctx context.Context, a *app) *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:      "engage",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
	})

	srv.Use(middleware.GatewayAuthMiddleware(a.cfg.Server.ServiceToken))

	origins := strings.Split(a.cfg.Server.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	srv.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-User-Roles",
		MaxAge:       86400,
	}))

	handlers.SetupRoutes(srv, a.handlerServices(ctx))
	return srv
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.seasons.GetOrStartCurrentSeason(ctx); err != nil {
		return fmt.Errorf("ensure active season: %w", err)
	}

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			slog.Warn("scheduler shutdown", "error", err)
		}
	}()

	workers.NewOutboxWorker(a.notifier, 30*time.Second).Start(ctx)

	srv := newHTTPApp(ctx, a)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(a.cfg.Server.Addr)
	}()

	slog.Info("✅ engagement engine running",
		"addr", a.cfg.Server.Addr,
		"timezone", a.loc.String(),
		"jobs", sched.JobNames(),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.ShutdownWithContext(shutdownCtx)
}
