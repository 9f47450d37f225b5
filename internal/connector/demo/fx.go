package demo

import (
	"github.com/finanze/finanze/internal/config"
	"github.com/finanze/finanze/internal/entity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// provide registers the virtual entity only when scrape.virtual is enabled at
// startup. Toggling the flag at runtime needs a restart.
func provide(holder *config.ScrapeConfigHolder, log *zap.Logger) []domain.Connector {
	if !holder.Get().Virtual.Enabled {
		return nil
	}
	return []domain.Connector{New(log)}
}

var Module = fx.Module("connector.demo",
	fx.Provide(
		fx.Annotate(
			provide,
			fx.ResultTags(`group:"connectors,flatten"`),
		),
	),
)
