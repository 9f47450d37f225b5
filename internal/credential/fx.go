package credential

import (
	"github.com/finanze/finanze/internal/credential/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("credential.store",
	fx.Provide(repository.Provide),
)
