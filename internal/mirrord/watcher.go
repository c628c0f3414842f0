package mirrord

import (
	"context"
	"log/slog"
	"time"

	"github.com/rjeczalik/notify"
)

const watchDebounce = 500 * time.Millisecond

// watchCheckout nudges the sync loop when the checkout changes out-of-band
// (someone edited the working tree directly). Events are debounced so a
// burst of writes costs one early pass; the pass itself is digest-gated, so
// a spurious nudge is quiet.
func (d *Daemon) watchCheckout(ctx context.Context) {
	events := make(chan notify.EventInfo, 16)
	recursive := d.cfg.CheckoutDir() + "/..."
	if err := notify.Watch(recursive, events, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		slog.Error("checkout watch", "error", err, "dir", d.cfg.CheckoutDir())
		return
	}
	defer notify.Stop(events)
	slog.Info("checkout watch start", "dir", d.cfg.CheckoutDir())

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-events:
			if !ok {
				return
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			d.syncer.RefreshNow()
		}
	}
}
