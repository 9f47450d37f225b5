package position

import (
	"github.com/finanze/finanze/internal/position/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("position.store",
	fx.Provide(repository.Provide),
)
