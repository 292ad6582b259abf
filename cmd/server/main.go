package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	fxmodules "github.com/RevTvGG/l4d2-ranked-sub000/internal/fx"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/middleware"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/server"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	srv *server.Server,
	matchmaker *service.Matchmaker,
	acceptance *service.AcceptanceService,
	queueSvc *service.QueueService,
	matchSvc *service.MatchService,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := middleware.RequestID(logger)(middleware.Principal(c.Handler(srv.Routes())))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}

	loopCtx, cancelLoops := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Deadlines are data on the match rows; re-arm them before
			// accepting traffic so a crash never strands a VETO match.
			if err := acceptance.RecoverPending(ctx); err != nil {
				return err
			}
			if err := matchSvc.RecoverPaused(ctx); err != nil {
				return err
			}

			go matchmaker.Run(loopCtx)
			go queueSvc.RunSweeper(loopCtx)

			go func() {
				logger.Info().Str("addr", httpServer.Addr).Msg("server starting")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			cancelLoops()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
