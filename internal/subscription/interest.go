package subscription

import (
	"sync"

	"github.com/rickgao/market-sync/internal/model"
)

// Interest is one consumer's hold on a set of Topics.
type Interest struct {
	id     string
	topics []model.Topic
	reg    *Registry
	once   sync.Once
}

// ID returns the unique identifier of the Interest.
func (in *Interest) ID() string { return in.id }

// Topics returns a copy of the Topics held.
func (in *Interest) Topics() []model.Topic {
	return append([]model.Topic(nil), in.topics...)
}

// Release gives the Topics back. Safe to call more than once.
func (in *Interest) Release() {
	in.once.Do(func() {
		in.reg.release(in)
	})
}
