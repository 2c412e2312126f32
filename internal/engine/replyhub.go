package engine

import "context"

// replyHub is the single consumer of the shared result channel. It updates
// the tracker and fans every result out to the broadcast bus, which is the
// only way observers (including the coordinator's own subscribers) see
// results.
type replyHub struct {
	results chan CommandResult
	tracker *Tracker
	bus     *broadcastBus
}

func newReplyHub(results chan CommandResult, tracker *Tracker, bus *broadcastBus) *replyHub {
	return &replyHub{results: results, tracker: tracker, bus: bus}
}

// Run consumes results until ctx is cancelled or the result channel closes.
func (h *replyHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-h.results:
			if !ok {
				return
			}
			h.handle(result)
		}
	}
}

func (h *replyHub) handle(result CommandResult) {
	if result.Status == StatusAlarm {
		// The command stays Processing: set the global alarm gate and
		// broadcast only.
		if result.Error != nil {
			h.tracker.SetAlarm(result.CommandID, *result.Error)
		}
		h.bus.Publish(result)
		return
	}

	_ = h.tracker.MarkCompleted(result.CommandID, result)
	h.bus.Publish(result)
}
