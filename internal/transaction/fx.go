package transaction

import (
	"github.com/smallbiznis/hera/internal/transaction/repository"
	"github.com/smallbiznis/hera/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
