package channels

import (
	"context"
	"log/slog"
)

// StartDiagnosticsLogger consumes the diagnostic channels and writes each
// event to the log. Keeps the buffers drained when no other consumer is
// attached.
func StartDiagnosticsLogger(ctx context.Context, events *Events, logger *slog.Logger) {
	log := logger.With("component", "diagnostics")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			case ev, ok := <-events.PollError:
				if !ok {
					return
				}
				log.Warn("poll error",
					"watcher", ev.Watcher,
					"error", ev.Err,
				)
			case ev, ok := <-events.ListenerPanic:
				if !ok {
					return
				}
				log.Error("listener panic",
					"watcher", ev.Watcher,
					"path", ev.Path,
					"panic", ev.Recovered,
				)
			case ev, ok := <-events.WatcherState:
				if !ok {
					return
				}
				log.Info("watcher state changed",
					"watcher", ev.Watcher,
					"state", ev.State,
				)
			}
		}
	}()
}
