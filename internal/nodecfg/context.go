package nodecfg

import (
	"context"

	"go.uber.org/zap"
)

// Context is the process-wide dependency every component receives by
// reference instead of reaching for a package-level singleton. It is
// constructed once at startup and torn down at shutdown; components must
// never attempt to re-initialize it mid-run (see §9 "Global mutable
// state").
type Context struct {
	Config *Config
	Log    *zap.Logger

	// cancel is invoked by Shutdown; every background loop selects on
	// the associated context.Context and exits at its next suspension
	// point.
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Context wired with the given config and logger.
func New(cfg *Config, log *zap.Logger) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	return &Context{
		Config: cfg,
		Log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Done returns the context that every background loop should select on.
func (c *Context) Done() context.Context { return c.ctx }

// Shutdown cancels Done() and flushes the logger.
func (c *Context) Shutdown() {
	c.cancel()
	_ = c.Log.Sync()
}

// Sugar is a convenience accessor for call sites ported from the teacher's
// log.Printf-style format strings.
func (c *Context) Sugar() *zap.SugaredLogger { return c.Log.Sugar() }
