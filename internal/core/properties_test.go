package core

import (
	"reflect"
	"testing"
)

func TestPropertyDictionaryAppend(t *testing.T) {
	t.Run("Minimal Change Set", func(t *testing.T) {
		d := NewPropertyDictionary()
		keys, values := d.Append([]string{"a", "b"}, []string{"1", "2"})
		if !reflect.DeepEqual(keys, []string{"a", "b"}) || !reflect.DeepEqual(values, []string{"1", "2"}) {
			t.Fatalf("unexpected change-set: %v %v", keys, values)
		}

		keys, values = d.Append([]string{"a", "b"}, []string{"1", "3"})
		if !reflect.DeepEqual(keys, []string{"b"}) || !reflect.DeepEqual(values, []string{"3"}) {
			t.Fatalf("expected only changed key b, got %v %v", keys, values)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		d := NewPropertyDictionary()
		d.Append([]string{"a", "b"}, []string{"1", "2"})
		keys, _ := d.Append([]string{"a", "b"}, []string{"1", "2"})
		if len(keys) != 0 {
			t.Fatalf("second identical batch should change nothing, got %v", keys)
		}
	})

	t.Run("Last Occurrence Wins", func(t *testing.T) {
		d := NewPropertyDictionary()
		keys, values := d.Append([]string{"a", "a"}, []string{"1", "2"})
		if !reflect.DeepEqual(keys, []string{"a"}) || !reflect.DeepEqual(values, []string{"2"}) {
			t.Fatalf("last occurrence should win once: %v %v", keys, values)
		}
		if d.Get("a") != "2" {
			t.Fatalf("expected a=2, got %q", d.Get("a"))
		}

		// Batch ending back on the current value is not a change.
		keys, _ = d.Append([]string{"a", "a"}, []string{"9", "2"})
		if len(keys) != 0 {
			t.Fatalf("net-unchanged key reported as changed: %v", keys)
		}
	})

	t.Run("Empty Value Deletes", func(t *testing.T) {
		d := NewPropertyDictionary()
		d.Append([]string{"topic"}, []string{"demo"})
		keys, values := d.Append([]string{"topic"}, []string{""})
		if !reflect.DeepEqual(keys, []string{"topic"}) || !reflect.DeepEqual(values, []string{""}) {
			t.Fatalf("deletion should appear in change-set: %v %v", keys, values)
		}
		if d.Get("topic") != "" {
			t.Fatalf("deleted key should read empty")
		}
		if len(d.Keys()) != 0 {
			t.Fatalf("deleted key still present: %v", d.Keys())
		}
	})

	t.Run("Mismatched Input", func(t *testing.T) {
		d := NewPropertyDictionary()
		// Trailing value without a key is ignored.
		keys, _ := d.Append([]string{"a"}, []string{"1", "orphan"})
		if !reflect.DeepEqual(keys, []string{"a"}) {
			t.Fatalf("unexpected change-set: %v", keys)
		}
		// Trailing key without a value deletes (sets "").
		d.Append([]string{"a", "b"}, []string{""})
		if d.Get("a") != "" || d.Get("b") != "" {
			t.Fatalf("short values should read as empty")
		}
		keys, _ = d.Append(nil, nil)
		if len(keys) != 0 {
			t.Fatalf("nil batch should be a no-op")
		}
	})
}

func TestPropertyDictionaryGetAbsent(t *testing.T) {
	d := NewPropertyDictionary()
	if d.Get("missing") != "" {
		t.Fatalf("absent key must read as empty string")
	}
}

func TestPropertyDictionarySnapshot(t *testing.T) {
	d := NewPropertyDictionary()
	d.Append([]string{"b", "a"}, []string{"2", "1"})
	keys, values := d.Snapshot()
	if !reflect.DeepEqual(keys, []string{"a", "b"}) || !reflect.DeepEqual(values, []string{"1", "2"}) {
		t.Fatalf("snapshot not stable: %v %v", keys, values)
	}
}
