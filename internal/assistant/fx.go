package assistant

import (
	"github.com/smallbiznis/creditledger/internal/assistant/gemini"
	"github.com/smallbiznis/creditledger/internal/assistant/repository"
	"github.com/smallbiznis/creditledger/internal/assistant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("assistant.service",
	fx.Provide(repository.Provide),
	fx.Provide(gemini.NewFromConfig),
	fx.Provide(service.New),
)
