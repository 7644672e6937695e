package purchase

import (
	"github.com/smallbiznis/creditledger/internal/purchase/service"
	"go.uber.org/fx"
)

var Module = fx.Module("purchase.service",
	fx.Provide(service.NewService),
)
