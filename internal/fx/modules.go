package fx

import (
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/api"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/logger"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/server"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewQueueRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewBanRepository),
	// collaborators
	fx.Provide(api.NewGameServerClient),
	fx.Provide(func(c *api.GameServerClient) service.ServerAllocator { return c }),
	fx.Provide(service.NewEloRater),
	fx.Provide(func(r *service.EloRater) service.RatingUpdater { return r }),
	// svc
	fx.Provide(service.NewMatchLocks),
	fx.Provide(service.NewAcceptanceService),
	fx.Provide(service.NewMatchmaker),
	fx.Provide(service.NewMatchService),
	fx.Provide(service.NewQueueService),
	// server
	fx.Provide(server.New),
)
