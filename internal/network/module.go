package network

import "go.uber.org/fx"

// Module wires a TCPChecker-backed Observer, following the teacher's
// registry.Module shape.
var Module = fx.Module("network",
	fx.Provide(
		func() Checker { return NewTCPChecker("1.1.1.1:443") },
		New,
		fx.Annotate(
			func(o *NetworkObserver) Observer { return o },
			fx.As(new(Observer)),
		),
	),
)
