package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tenantly/tenantly/internal/authorization"
	"github.com/tenantly/tenantly/internal/billing"
	"github.com/tenantly/tenantly/internal/clock"
	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/migration"
	"github.com/tenantly/tenantly/internal/observability"
	"github.com/tenantly/tenantly/internal/organization"
	"github.com/tenantly/tenantly/internal/ratelimit"
	"github.com/tenantly/tenantly/internal/server"
	"github.com/tenantly/tenantly/internal/usage"
	"github.com/tenantly/tenantly/pkg/db"
	"github.com/tenantly/tenantly/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		organization.Module,
		authorization.Module,
		usage.Module,
		billing.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
