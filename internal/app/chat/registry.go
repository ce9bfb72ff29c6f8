/*
Package chat contains the connection-and-message-routing core of the server.

This file defines the Registry, the lock-guarded table mapping an authenticated
username to its live connection. The registry is the single source of truth for
"who is currently reachable"; closed connections are removed synchronously.
*/
package chat

import (
	"sync"

	"concord/internal/app/user"
)

// PresenceEntry is one row of the online-user list sent to clients.
type PresenceEntry struct {
	Name   string `json:"name"`
	Avatar string `json:"profilePicture,omitempty"`
}

// registryEntry pairs a live connection with the identity it authenticated as.
// The identity is copied in under the registry lock so presence snapshots never
// race with a re-authentication on the owning connection.
type registryEntry struct {
	client   *Client
	identity user.Identity
}

// Registry maps authenticated usernames to live connections. Exactly one
// connection may be registered per name; a second authentication for the same
// name replaces the entry and the caller decides the fate of the evicted
// connection.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register inserts or overwrites the entry for the identity's name and returns
// the previously registered connection, or nil. Re-registering the same
// connection (a re-authentication) refreshes the cached identity and returns nil.
func (r *Registry) Register(c *Client, ident user.Identity) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.entries[ident.Name]
	r.entries[ident.Name] = registryEntry{client: c, identity: ident}

	if existed && prev.client != c {
		return prev.client
	}
	return nil
}

// Unregister removes the entry for the client's name, but only when the stored
// connection is the caller's. This guards against a stale close callback
// removing a newer connection that superseded it. Returns whether an entry was
// removed.
func (r *Registry) Unregister(name string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok || entry.client != c {
		return false
	}

	delete(r.entries, name)
	return true
}

// Lookup returns the live connection registered under the given name, or nil.
func (r *Registry) Lookup(name string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil
	}
	return entry.client
}

// Snapshot returns the current presence list. Order is not specified; clients
// sort for display.
func (r *Registry) Snapshot() []PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	presence := make([]PresenceEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		presence = append(presence, PresenceEntry{
			Name:   entry.identity.Name,
			Avatar: entry.identity.Avatar,
		})
	}
	return presence
}

// Clients returns the currently registered connections, for broadcast fan-out.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.entries))
	for _, entry := range r.entries {
		clients = append(clients, entry.client)
	}
	return clients
}

// fanoutTarget pairs a connection with the name it is registered under,
// captured under the registry lock. Broadcast logging reads this name rather
// than the connection's own identity, which belongs to its read loop.
type fanoutTarget struct {
	client *Client
	name   string
}

func (r *Registry) fanout() []fanoutTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]fanoutTarget, 0, len(r.entries))
	for name, entry := range r.entries {
		targets = append(targets, fanoutTarget{client: entry.client, name: name})
	}
	return targets
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
