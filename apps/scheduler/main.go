package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/config"
	"github.com/smallbiznis/hera/internal/entity"
	"github.com/smallbiznis/hera/internal/lock"
	"github.com/smallbiznis/hera/internal/observability"
	"github.com/smallbiznis/hera/internal/organization"
	"github.com/smallbiznis/hera/internal/posting"
	"github.com/smallbiznis/hera/internal/relationship"
	"github.com/smallbiznis/hera/internal/scheduler"
	"github.com/smallbiznis/hera/internal/transaction"
	"github.com/smallbiznis/hera/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by the daily posting job
		organization.Module,
		relationship.Module,
		entity.Module,
		transaction.Module,
		posting.Module,

		// No HTTP surface
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
