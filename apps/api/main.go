package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/config"
	"github.com/smallbiznis/hera/internal/lock"
	"github.com/smallbiznis/hera/internal/migration"
	"github.com/smallbiznis/hera/internal/observability"
	"github.com/smallbiznis/hera/internal/server"
	"github.com/smallbiznis/hera/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Domain services and the HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
