package connection

import "github.com/rickgao/market-sync/internal/model"

// frameKey identifies a control frame for coalescing. Timestamps are ignored.
type frameKey struct {
	typ   model.EventType
	topic model.Topic
	raw   string // Payload for frames without a topic
}

func keyOf(env model.Envelope) frameKey {
	if topic, ok := env.ControlTopic(); ok {
		return frameKey{typ: env.Type, topic: topic}
	}
	return frameKey{typ: env.Type, raw: string(env.Payload)}
}

func opposite(t model.EventType) model.EventType {
	switch t {
	case model.ControlSubscribe:
		return model.ControlUnsubscribe
	case model.ControlUnsubscribe:
		return model.ControlSubscribe
	}
	return ""
}

// outbox holds frames written while the connection cannot take them.
// Not safe for concurrent use; the Manager guards it.
type outbox struct {
	frames []model.Envelope
	max    int
}

func newOutbox(max int) *outbox {
	return &outbox{max: max}
}

// push queues env. Rules:
//   - a frame identical to a queued one is not queued again
//   - a subscribe/unsubscribe cancels a queued opposite frame for its topic
//   - with no connection (live=false) a lone unsubscribe is discarded, the
//     next open only resubscribes the current topic set
//
// Reports whether env ended up queued and returns ErrOutboxFull when no
// room is left.
func (o *outbox) push(env model.Envelope, live bool) (bool, error) {
	key := keyOf(env)

	for _, f := range o.frames {
		if keyOf(f) == key {
			return false, nil
		}
	}

	if opp := opposite(env.Type); opp != "" {
		cancel := frameKey{typ: opp, topic: key.topic}
		for i, f := range o.frames {
			if keyOf(f) == cancel {
				o.frames = append(o.frames[:i], o.frames[i+1:]...)
				return false, nil
			}
		}
		if env.Type == model.ControlUnsubscribe && !live {
			return false, nil
		}
	}

	if o.max > 0 && len(o.frames) >= o.max {
		return false, ErrOutboxFull
	}
	o.frames = append(o.frames, env)
	return true, nil
}

// drain removes and returns every queued frame in FIFO order.
func (o *outbox) drain() []model.Envelope {
	frames := o.frames
	o.frames = nil
	return frames
}

// requeue puts frames back at the head of the queue.
func (o *outbox) requeue(frames []model.Envelope) {
	o.frames = append(append([]model.Envelope(nil), frames...), o.frames...)
}

func (o *outbox) len() int {
	return len(o.frames)
}
