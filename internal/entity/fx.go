package entity

import (
	"github.com/finanze/finanze/internal/entity/domain"
	"go.uber.org/fx"
)

// Module assembles the connector registry from every connector registered in
// the "connectors" group.
var Module = fx.Module("entity.registry",
	fx.Provide(
		fx.Annotate(
			NewRegistry,
			fx.ParamTags(`group:"connectors"`),
		),
	),
)

// AsConnector annotates a constructor so its connector joins the registry.
func AsConnector(constructor any) any {
	return fx.Annotate(
		constructor,
		fx.As(new(domain.Connector)),
		fx.ResultTags(`group:"connectors"`),
	)
}
