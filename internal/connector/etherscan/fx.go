package etherscan

import (
	"github.com/finanze/finanze/internal/entity"
	"go.uber.org/fx"
)

var Module = fx.Module("connector.etherscan",
	fx.Provide(entity.AsConnector(New)),
)
