package relationship

import (
	"github.com/smallbiznis/hera/internal/relationship/repository"
	"github.com/smallbiznis/hera/internal/relationship/service"
	"go.uber.org/fx"
)

var Module = fx.Module("relationship.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
