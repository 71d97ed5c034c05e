package dsrouter

import (
	"sync"
)

// HealthCallback is called with a snapshot of a datasource descriptor after
// its health state has changed.
type HealthCallback func(d Descriptor)

// Watcher is a subscription to health transitions.
type Watcher interface {
	// Unregister stops the callback calls. It is safe to call it more than
	// once.
	Unregister()
}

// watcherContainer is a very simple implementation of a thread-safe container
// for watchers. It is not expected that there will be too many watchers and
// they will registered/unregistered too frequently.
type watcherContainer struct {
	head  *healthWatcher
	mutex sync.RWMutex
}

// add adds a watcher to the container.
func (c *watcherContainer) add(watcher *healthWatcher) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	watcher.next = c.head
	c.head = watcher
}

// remove removes a watcher from the container.
func (c *watcherContainer) remove(watcher *healthWatcher) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if watcher == c.head {
		c.head = watcher.next
		return true
	} else if c.head != nil {
		cur := c.head
		for cur.next != nil {
			if cur.next == watcher {
				cur.next = watcher.next
				return true
			}
			cur = cur.next
		}
	}
	return false
}

// notify calls every registered watcher. The list is copied under the lock,
// so a callback may register new watchers. Unregister() call from the
// callback leads to a deadlock.
func (c *watcherContainer) notify(d Descriptor) {
	c.mutex.RLock()
	var watchers []*healthWatcher
	for cur := c.head; cur != nil; cur = cur.next {
		watchers = append(watchers, cur)
	}
	c.mutex.RUnlock()

	for _, w := range watchers {
		w.call(d)
	}
}

type healthWatcher struct {
	// next item in the watcher container.
	next *healthWatcher
	// container is the container for all active healthWatcher objects.
	container *watcherContainer

	callback     HealthCallback
	unregistered bool
	mutex        sync.Mutex
}

// Unregister unregisters the watcher.
func (w *healthWatcher) Unregister() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.unregistered && w.container.remove(w) {
		w.unregistered = true
	}
}

func (w *healthWatcher) call(d Descriptor) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.unregistered {
		w.callback(d)
	}
}
