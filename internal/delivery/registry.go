// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Handler delivers msg to a single prefixed recipient such as
// "telegram:-100123".
type Handler func(ctx context.Context, recipient string, msg Message) error

// Registry routes recipients to handlers by prefix. The longest matching
// prefix wins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for recipients starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Lookup returns the handler for recipient, if any.
func (r *Registry) Lookup(recipient string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best string
	var found Handler
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(recipient, prefix) && len(prefix) >= len(best) {
			best, found = prefix, handler
		}
	}
	return found, found != nil
}

// Deliver calls the handler registered for recipient.
func (r *Registry) Deliver(ctx context.Context, recipient string, msg Message) error {
	handler, ok := r.Lookup(recipient)
	if !ok {
		return fmt.Errorf("no delivery handler for recipient: %s", recipient)
	}
	return handler(ctx, recipient, msg)
}
