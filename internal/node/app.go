package node

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/nodecfg"
)

// Passphrase unlocks the node's sealed identity.key; fx.Supply'd by
// cmd/dignode once resolved from flag/env/interactive prompt.
type Passphrase []byte

// App builds an fx.App around a single Node, expressing §4.12's ordered
// startup/shutdown as an fx.Lifecycle hook rather than the sequence of
// goroutines and deferred calls a flat main() would use.
func App(log *zap.Logger, cfg *nodecfg.Config, passphrase Passphrase) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		fx.Supply(passphrase),
		fx.Provide(func() *zap.Logger { return log }),
		fx.Provide(newLifecycleNode),
		fx.Invoke(registerLifecycle),
		fx.NopLogger,
	)
}

// newLifecycleNode constructs the Node against context.Background when fx
// resolves the constructor graph inside fx.New, so a failure anywhere in
// construction is visible to fx.New's caller instead of surfacing only
// once OnStart runs.
func newLifecycleNode(log *zap.Logger, cfg *nodecfg.Config, passphrase Passphrase) (*Node, error) {
	return New(context.Background(), log, cfg, passphrase)
}

func registerLifecycle(lc fx.Lifecycle, n *Node) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return n.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return n.Shutdown(ctx)
		},
	})
}
