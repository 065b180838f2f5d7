package ablation

import (
	"context"

	"github.com/teranos/ablation/errors"
)

// WithAblation ablates every collection, runs fn, and restores all ablated
// collections on every exit path. Errors from fn and from the restore are
// joined.
func (m *Machine) WithAblation(ctx context.Context, collections []string, fn func(context.Context) error) (err error) {
	defer func() {
		// Restore even when ctx was cancelled mid-run.
		if cerr := m.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, errors.Wrap(cerr, "restore after ablation"))
		}
	}()

	for _, collection := range collections {
		if err := m.Ablate(ctx, collection); err != nil {
			return err
		}
	}
	return fn(ctx)
}
