package fetchrecord

import (
	"context"

	"github.com/finanze/finanze/internal/fetchrecord/domain"
	"github.com/finanze/finanze/internal/fetchrecord/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("fetchrecord.log",
	fx.Provide(repository.Provide),
	fx.Invoke(func(lc fx.Lifecycle, repo domain.Repository, db *gorm.DB) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return repo.Warm(ctx, db)
			},
		})
	}),
)
