package assembly

import (
	"github.com/finanze/finanze/internal/assembly/service"
	"go.uber.org/fx"
)

var Module = fx.Module("assembly.service",
	fx.Provide(service.New),
)
