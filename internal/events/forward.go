package events

import (
	"context"
	"time"
)

// Forward pumps storage change notifications onto the bus. The mapping ties
// document keys to topics; changes to unmapped keys are ignored. Forward
// blocks until the context ends or the changes channel closes, so callers
// run it in its own goroutine.
func Forward(ctx context.Context, changes <-chan string, bus *Bus, topics map[string]string) {
	if bus == nil || len(topics) == 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-changes:
			if !ok {
				return
			}
			topic, mapped := topics[key]
			if !mapped {
				continue
			}
			bus.Publish(Event{Topic: topic, Key: key, Time: time.Now().UTC()})
		}
	}
}
