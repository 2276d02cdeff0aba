// Package safego launches fire-and-forget goroutines that must not take the
// server down. The post-connect backfill and the scheduled job loops all run
// off the request path, where an unrecovered panic would kill the process
// with nothing in the access log to explain why.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine, recovering and logging any panic under the
// given task name. The stack is logged too, because a background panic has no
// request to correlate with.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background task panicked",
					"task", task,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
