package subscription

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/market-sync/internal/model"
)

// Sender accepts outbound control frames. connection.Manager implements it.
type Sender interface {
	Send(env model.Envelope) error
}

// Stats provides counters about the registry.
type Stats struct {
	Topics          int
	Interests       int
	SubscribesSent  int64
	UnsubscribeSent int64
}

// Registry tracks how many consumers need each Topic.
type Registry struct {
	sender Sender
	logger *slog.Logger

	// sendMu orders count transitions with their frames. It is held across
	// Sender.Send; mu is not, so readers never wait on a network write.
	sendMu sync.Mutex

	mu        sync.Mutex
	counts    map[model.Topic]int
	interests map[string]*Interest
	subs      int64
	unsubs    int64
}

// NewRegistry creates a Registry that sends control frames through sender.
func NewRegistry(sender Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sender:    sender,
		logger:    logger,
		counts:    make(map[model.Topic]int),
		interests: make(map[string]*Interest),
	}
}

// Acquire registers interest in topics. Duplicate and empty topics within one
// call are ignored. The returned Interest must be released exactly once;
// extra releases are no-ops.
func (r *Registry) Acquire(topics ...model.Topic) *Interest {
	unique := dedupe(topics)
	in := &Interest{
		id:     uuid.NewString(),
		topics: unique,
		reg:    r,
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	var frames []model.Envelope
	r.mu.Lock()
	r.interests[in.id] = in
	for _, topic := range unique {
		r.counts[topic]++
		if r.counts[topic] == 1 {
			frames = append(frames, model.SubscribeFrame(topic))
			r.subs++
			r.logger.Debug("topic added", "topic", topic)
		}
	}
	r.mu.Unlock()

	r.send(frames)
	return in
}

// Release drops the Interest with the given id. Reports whether it existed.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	in, ok := r.interests[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	in.Release()
	return true
}

func (r *Registry) release(in *Interest) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	var frames []model.Envelope
	r.mu.Lock()
	delete(r.interests, in.id)
	for _, topic := range in.topics {
		n, ok := r.counts[topic]
		if !ok {
			continue
		}
		if n > 1 {
			r.counts[topic] = n - 1
			continue
		}
		delete(r.counts, topic)
		frames = append(frames, model.UnsubscribeFrame(topic))
		r.unsubs++
		r.logger.Debug("topic removed", "topic", topic)
	}
	r.mu.Unlock()

	r.send(frames)
}

// send forwards frames in order. Caller holds sendMu.
func (r *Registry) send(frames []model.Envelope) {
	if r.sender == nil {
		return
	}
	for _, env := range frames {
		if err := r.sender.Send(env); err != nil {
			r.logger.Warn("control frame not sent", "type", env.Type, "error", err)
		}
	}
}

// OpenFrames returns subscribe frames for the full current Topic set, sorted.
// It is meant to be registered with connection.Manager.OnOpen. It waits for
// an in-flight Acquire or Release to hand its frames to the Sender, so the
// snapshot never races an incremental frame for the same transition.
func (r *Registry) OpenFrames() []model.Envelope {
	r.sendMu.Lock()
	topics := r.Topics()
	r.sendMu.Unlock()

	frames := make([]model.Envelope, 0, len(topics))
	for _, topic := range topics {
		frames = append(frames, model.SubscribeFrame(topic))
	}
	if len(frames) > 0 {
		r.logger.Info("resubscribing", "topics", len(frames))
	}
	return frames
}

// Topics returns the current Topic set, sorted.
func (r *Registry) Topics() []model.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]model.Topic, 0, len(r.counts))
	for topic := range r.counts {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

// Count returns the reference count of a Topic.
func (r *Registry) Count(topic model.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[topic]
}

// Interest looks up a live Interest by id.
func (r *Registry) Interest(id string) (*Interest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.interests[id]
	return in, ok
}

// Stats returns registry counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Topics:          len(r.counts),
		Interests:       len(r.interests),
		SubscribesSent:  r.subs,
		UnsubscribeSent: r.unsubs,
	}
}

func dedupe(topics []model.Topic) []model.Topic {
	seen := make(map[model.Topic]struct{}, len(topics))
	out := make([]model.Topic, 0, len(topics))
	for _, t := range topics {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
