package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/finanze/finanze/internal/assembly"
	"github.com/finanze/finanze/internal/clock"
	"github.com/finanze/finanze/internal/config"
	"github.com/finanze/finanze/internal/connector/demo"
	"github.com/finanze/finanze/internal/connector/etherscan"
	"github.com/finanze/finanze/internal/connector/gocardless"
	"github.com/finanze/finanze/internal/credential"
	"github.com/finanze/finanze/internal/entity"
	"github.com/finanze/finanze/internal/exchange"
	"github.com/finanze/finanze/internal/fetch"
	"github.com/finanze/finanze/internal/fetchrecord"
	"github.com/finanze/finanze/internal/logger"
	"github.com/finanze/finanze/internal/migration"
	"github.com/finanze/finanze/internal/position"
	"github.com/finanze/finanze/internal/server"
	"github.com/finanze/finanze/internal/session"
	"github.com/finanze/finanze/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,

		entity.Module,
		demo.Module,
		gocardless.Module,
		etherscan.Module,

		credential.Module,
		session.Module,
		fetchrecord.Module,
		position.Module,
		exchange.Module,

		fetch.Module,
		assembly.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
