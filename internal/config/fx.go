package config

import "go.uber.org/fx"

// Module wires application and scrape configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewScrapeConfigHolder,
	),
)
