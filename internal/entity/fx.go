package entity

import (
	"github.com/smallbiznis/hera/internal/entity/repository"
	"github.com/smallbiznis/hera/internal/entity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entity.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
