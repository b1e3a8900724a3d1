// Package registry keeps the set of active advertising clients.
package registry

import (
	"sort"

	"github.com/cornelk/hashmap"
	"github.com/srg/bleadv/internal/advertise"
)

// Registry is the authoritative set of active advertising sessions keyed by
// client id. Mutations are expected from a single goroutine (the request
// serializer); reads may happen concurrently.
type Registry struct {
	clients *hashmap.Map[int, *advertise.Client]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{clients: hashmap.New[int, *advertise.Client]()}
}

// Contains reports whether clientID is active.
func (r *Registry) Contains(clientID int) bool {
	_, ok := r.clients.Get(clientID)
	return ok
}

// Get returns the active client with clientID.
func (r *Registry) Get(clientID int) (*advertise.Client, bool) {
	return r.clients.Get(clientID)
}

// Len returns the number of active clients.
func (r *Registry) Len() int {
	return r.clients.Len()
}

// Add marks c active. An existing entry with the same id is replaced.
func (r *Registry) Add(c *advertise.Client) {
	r.clients.Set(c.ID, c)
}

// Remove drops clientID. It reports whether the client was active.
func (r *Registry) Remove(clientID int) bool {
	return r.clients.Del(clientID)
}

// IDs returns the active client ids in ascending order.
func (r *Registry) IDs() []int {
	ids := make([]int, 0, r.clients.Len())
	r.clients.Range(func(id int, _ *advertise.Client) bool {
		ids = append(ids, id)
		return true
	})
	sort.Ints(ids)
	return ids
}

// Clear removes every client.
func (r *Registry) Clear() {
	for _, id := range r.IDs() {
		r.clients.Del(id)
	}
}

// Capacity returns how many clients may be active given the controller's
// instance count. One instance is reserved for legacy advertising.
func Capacity(maxInstances int) int {
	if maxInstances <= 1 {
		return 0
	}
	return maxInstances - 1
}
