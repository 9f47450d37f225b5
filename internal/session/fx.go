package session

import (
	"github.com/finanze/finanze/internal/session/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("session.table",
	fx.Provide(repository.Provide),
)
