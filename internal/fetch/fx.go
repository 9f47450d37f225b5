package fetch

import (
	"github.com/finanze/finanze/internal/fetch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fetch.service",
	fx.Provide(service.New),
)
