package agentfabric

import "sync"

// agentRegistry tracks which connection currently owns each agent name.
// A new successful login for a name replaces any prior registration for
// it (§4.4 "Success registers the agent under its declared name, replacing
// any prior registration for that name").
type agentRegistry struct {
	mu       sync.Mutex
	byName   map[string]string // agent name -> connection id
	byConnID map[string]string // connection id -> agent name
}

func newAgentRegistry() *agentRegistry {
	return &agentRegistry{
		byName:   make(map[string]string),
		byConnID: make(map[string]string),
	}
}

// register replaces any prior connection registered under name, returning
// the connection id it displaced (empty if none).
func (r *agentRegistry) register(name, connID string) (displaced string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevConn, ok := r.byName[name]; ok && prevConn != connID {
		delete(r.byConnID, prevConn)
		displaced = prevConn
	}
	r.byName[name] = connID
	r.byConnID[connID] = name
	return displaced
}

// deregisterConn removes whatever agent name is currently bound to connID,
// used both on auth failure and on disconnect.
func (r *agentRegistry) deregisterConn(connID string) (name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok = r.byConnID[connID]
	if !ok {
		return "", false
	}
	delete(r.byConnID, connID)
	if r.byName[name] == connID {
		delete(r.byName, name)
	}
	return name, true
}

func (r *agentRegistry) connFor(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	connID, ok := r.byName[name]
	return connID, ok
}

func (r *agentRegistry) nameFor(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byConnID[connID]
	return name, ok
}

func (r *agentRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// names returns every currently registered agent name.
func (r *agentRegistry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}
