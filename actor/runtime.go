package actor

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"go.uber.org/multierr"
)

// Options configures a runtime launch.
type Options struct {
	Logger  hclog.Logger
	Metrics *Metrics
}

// StartupFunc spawns the top-level actors of the process into the root scope.
type StartupFunc func(scope *Scope) error

// Launch runs the actor runtime. startup spawns the top-level actors into the root scope.
// Cancelling ctx shuts the root scope down. Launch returns once every actor spawned into the
// root scope terminated and the scope drained. The returned error combines the startup error
// with the failures of top-level actors that did not terminate by cancellation.
func Launch(ctx context.Context, opts Options, startup StartupFunc) (err error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	root := newRootScope(ctx, opts.Logger, opts.Metrics)

	opts.Logger.Debug("Runtime launched")

	if startupErr := startup(root); startupErr != nil {
		err = multierr.Append(err, fmt.Errorf("runtime startup failed: %w", startupErr))

		root.Shutdown()
	}

	// the root scope completes when its last actor terminated, either on its own or by cancellation
	root.wg.Wait()
	root.shutdownAndWait()

	opts.Logger.Debug("Runtime stopped")

	return multierr.Append(err, root.failures())
}
