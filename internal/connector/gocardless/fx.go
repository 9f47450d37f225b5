package gocardless

import (
	"github.com/finanze/finanze/internal/entity"
	"go.uber.org/fx"
)

var Module = fx.Module("connector.gocardless",
	fx.Provide(entity.AsConnector(New)),
)
