package notify

import (
	"context"

	"github.com/quartzbi/beacon/report"
)

// Channel delivers an envelope to one recipient. Implementations enforce
// their own timeouts and wrap transport failures in StatusError when a
// status code is available.
type Channel interface {
	Deliver(ctx context.Context, recipient report.Recipient, env *Envelope) error
}

// Registry maps recipient types to their channel implementation.
type Registry struct {
	channels map[report.RecipientType]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[report.RecipientType]Channel)}
}

func (r *Registry) Register(t report.RecipientType, c Channel) {
	r.channels[t] = c
}

func (r *Registry) Get(t report.RecipientType) (Channel, bool) {
	c, ok := r.channels[t]
	return c, ok
}
