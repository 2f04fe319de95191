package core

import (
	"sort"
	"sync"
)

// PropertyDictionary is a threadsafe string-to-string map where setting
// a key to "" deletes it. Readers cannot distinguish absence from "".
// Its mutex is a leaf: it is safe to use from message handlers and from
// the credential refresh goroutine without ordering concerns.
type PropertyDictionary struct {
	mu    sync.RWMutex
	props map[string]string
}

func NewPropertyDictionary() *PropertyDictionary {
	return &PropertyDictionary{props: make(map[string]string)}
}

// Get returns "" for absent keys.
func (d *PropertyDictionary) Get(key string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.props[key]
}

// Append applies a batch of key/value pairs in order. The last
// occurrence of a duplicated key wins. Trailing values without a key
// are ignored; trailing keys without a value set "". The return is the
// minimal change-set: only keys whose final value differs from the
// value before the batch, ready to fan out to observers. Malformed
// input never errors, it just yields an empty change-set.
func (d *PropertyDictionary) Append(keys, values []string) ([]string, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	final := make(map[string]string, len(keys))
	order := make([]string, 0, len(keys))
	for i, k := range keys {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		if _, seen := final[k]; !seen {
			order = append(order, k)
		}
		final[k] = v
	}

	changedKeys := make([]string, 0, len(order))
	changedValues := make([]string, 0, len(order))
	for _, k := range order {
		v := final[k]
		if d.props[k] == v {
			continue
		}
		if v == "" {
			delete(d.props, k)
		} else {
			d.props[k] = v
		}
		changedKeys = append(changedKeys, k)
		changedValues = append(changedValues, v)
	}
	return changedKeys, changedValues
}

// Keys returns the current keys, sorted for a stable view.
func (d *PropertyDictionary) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.props))
	for k := range d.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the values in the same order Keys reports.
func (d *PropertyDictionary) Values() []string {
	_, values := d.Snapshot()
	return values
}

// Snapshot returns parallel key/value slices, sorted by key.
func (d *PropertyDictionary) Snapshot() ([]string, []string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.props))
	for k := range d.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, d.props[k])
	}
	return keys, values
}
