package experts

import (
	"fmt"
	"strings"

	"github.com/hrygo/ensemble/ai/core/llm"
)

// Models holds the per-expert model bindings, resolved at startup.
type Models struct {
	Finance   string
	Technical string
	General   string
}

// Registry is the fixed, ordered expert catalog. It is built once at startup
// and read-only afterwards; concurrent dispatch reads it without locking.
type Registry struct {
	order   []ID
	experts map[ID]*Expert
}

// NewRegistry builds the catalog with one expert per ID.
func NewRegistry(svc llm.Service, models Models) *Registry {
	r := &Registry{
		order:   All(),
		experts: make(map[ID]*Expert, 3),
	}
	r.experts[Finance] = New(Finance, models.Finance, svc)
	r.experts[Technical] = New(Technical, models.Technical, svc)
	r.experts[General] = New(General, models.General, svc)
	return r
}

// Get returns the expert for id.
func (r *Registry) Get(id ID) (*Expert, bool) {
	e, ok := r.experts[id]
	return e, ok
}

// IDs returns the catalog order.
func (r *Registry) IDs() []ID {
	return r.order
}

// Describe renders the catalog as a bullet list for the routing prompt, using
// the suffixed identifier form the backend is instructed to answer with.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, id := range r.order {
		sb.WriteString(fmt.Sprintf("- %s_expert: %s\n", id, descriptions[id]))
	}
	return sb.String()
}
