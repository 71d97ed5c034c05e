package dsrouter

import (
	"strings"
	"sync"
)

// Registry holds named datasource descriptors: one master and any number of
// slaves. It is populated once at start-up and is read-mostly after that.
// The only runtime write is a health update.
type Registry struct {
	mutex   sync.RWMutex
	order   []string
	entries map[string]*Descriptor
	master  string
	// versions counts health transitions per id.
	versions map[string]uint64

	watchers    watcherContainer
	notifyMutex sync.Mutex
	notified    map[string]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*Descriptor),
		versions: make(map[string]uint64),
		notified: make(map[string]uint64),
	}
}

// Register adds a datasource. It fails with ConfigError on an empty or
// duplicate id, an invalid role or a second master.
func (r *Registry) Register(d Descriptor) error {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return &ConfigError{Msg: ErrEmptyDataSourceID.Error()}
	}
	if d.Role != MasterRole && d.Role != SlaveRole {
		return &ConfigError{ID: d.ID, Msg: "invalid role " + d.Role.String()}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.entries[d.ID]; ok {
		return &ConfigError{ID: d.ID, Msg: "duplicate id"}
	}
	if d.Role == MasterRole {
		if r.master != "" {
			return &ConfigError{ID: d.ID, Msg: "master is already registered as " + r.master}
		}
		r.master = d.ID
	}

	r.entries[d.ID] = &d
	r.order = append(r.order, d.ID)
	return nil
}

// Lookup returns the descriptor with the id or NotFoundError.
func (r *Registry) Lookup(id string) (Descriptor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	d, ok := r.entries[id]
	if !ok {
		return Descriptor{}, &NotFoundError{ID: id}
	}
	return *d, nil
}

// Master returns the master descriptor.
func (r *Registry) Master() (Descriptor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.master == "" {
		return Descriptor{}, &NotFoundError{}
	}
	return *r.entries[r.master], nil
}

// List returns descriptors with the role in insertion order.
func (r *Registry) List(role Role) []Descriptor {
	return r.filter(func(d *Descriptor) bool {
		return d.Role == role
	})
}

// Healthy returns healthy descriptors with the role in insertion order.
func (r *Registry) Healthy(role Role) []Descriptor {
	return r.filter(func(d *Descriptor) bool {
		return d.Role == role && d.Healthy
	})
}

// All returns all descriptors in insertion order.
func (r *Registry) All() []Descriptor {
	return r.filter(func(*Descriptor) bool { return true })
}

// Len returns the number of registered datasources.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.order)
}

func (r *Registry) filter(match func(d *Descriptor) bool) []Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ret := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		if d := r.entries[id]; match(d) {
			ret = append(ret, *d)
		}
	}
	return ret
}

// Update sets the health state of a datasource. It is called by a health
// monitor. Watchers are notified only if the state has changed.
func (r *Registry) Update(id string, healthy bool) error {
	r.mutex.Lock()
	d, ok := r.entries[id]
	if !ok {
		r.mutex.Unlock()
		return &NotFoundError{ID: id}
	}
	changed := d.Healthy != healthy
	d.Healthy = healthy
	snapshot := *d
	if changed {
		r.versions[id]++
	}
	version := r.versions[id]
	r.mutex.Unlock()

	if changed {
		r.notify(snapshot, version)
	}
	return nil
}

// notify delivers transitions of a datasource one at a time. A transition
// which lost the race to a newer one is dropped, so the last delivered state
// is the state of the registry.
func (r *Registry) notify(d Descriptor, version uint64) {
	r.notifyMutex.Lock()
	defer r.notifyMutex.Unlock()

	if version <= r.notified[d.ID] {
		return
	}
	r.notified[d.ID] = version
	r.watchers.notify(d)
}

// Watch registers a callback called on every health transition. Callbacks
// are called synchronously from Update, outside of the registry lock, so a
// callback may read the registry. Callbacks are never called concurrently
// and must not call Update. Unregister() guarantees that there will be
// no callback calls after it returns.
func (r *Registry) Watch(callback HealthCallback) Watcher {
	w := &healthWatcher{
		container: &r.watchers,
		callback:  callback,
	}
	r.watchers.add(w)
	return w
}
