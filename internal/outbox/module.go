package outbox

import (
	"go.uber.org/fx"

	"github.com/webitel/im-sync-engine/internal/outbox/memstore"
)

// Module provides the reference memstore.Store behind the Store
// interface, following the teacher's registry.Module shape
// (fx.Annotate + fx.As to expose the interface, not the concrete type).
var Module = fx.Module("outbox",
	fx.Provide(
		memstore.New,
		fx.Annotate(
			func(s *memstore.Store) Store { return s },
			fx.As(new(Store)),
		),
	),
)
