package command

import (
	"context"
	"fmt"
	"time"
)

// reapLoop periodically resolves commands whose deadline has passed.
//
// Waiters are parked on their entry's done channel; without the reaper a
// command whose device died would block its caller forever. The sweep
// period bounds how far past its deadline an entry can linger, which is
// why it defaults well under a second.
func (e *Engine) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.sweep(now)
		}
	}
}

// sweep resolves every expired pending entry as a timeout.
// Returns the number of entries it resolved.
func (e *Engine) sweep(now time.Time) int {
	expired := e.table.Expired(now)
	reaped := 0

	for _, ent := range expired {
		res := &Result{
			CommandID: ent.commandID,
			DeviceID:  ent.deviceID,
			Status:    StatusTimeout,
			Message:   fmt.Sprintf("no response within %s", ent.deadline.Sub(ent.dispatchedAt)),
			Latency:   now.Sub(ent.dispatchedAt),
		}

		// A response can land between Expired() and here; losing the CAS
		// just means the command made it after all.
		if !ent.resolve(res) {
			continue
		}

		e.table.Remove(ent.commandID)
		e.metrics.TimedOut.Add(1)
		e.results.record(res)
		if e.recorder != nil {
			e.recorder.WriteCommandOutcome(ent.deviceID, ent.action, string(StatusTimeout), res.Latency)
		}

		e.logger.Warn("command timed out",
			"command_id", ent.commandID,
			"device_id", ent.deviceID,
			"action", ent.action,
			"waited_ms", res.Latency.Milliseconds(),
		)
		reaped++
	}
	return reaped
}
