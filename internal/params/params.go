// Package params provides small typed variables that notify subscribers on
// change and optionally persist themselves to a Store. The supported value
// types are a closed set picked at compile time through the Value
// constraint; there is no runtime type dispatch.
package params

import (
	"fmt"
	"log"
	"strconv"
	"sync"
)

// Value is the closed set of persistable types.
type Value interface {
	~int | ~int32 | ~int64 | ~uint32 | ~float64 | ~string
}

// Store persists encoded values by name. Implementations must be safe for
// concurrent use.
type Store interface {
	Load(name string) (string, bool, error)
	Save(name, value string) error
}

// Var is a reactive variable: Get/Set plus change handlers, with optional
// persistence once AttachStorage is called. Each Var carries its own lock
// and can be shared across goroutines.
type Var[T Value] struct {
	mu       sync.Mutex
	name     string
	value    T
	store    Store
	handlers []func(T)
}

// New returns a Var holding the initial value, not yet persisted.
func New[T Value](initial T) *Var[T] {
	return &Var[T]{value: initial}
}

// AttachStorage binds the Var to a store entry and loads any previously
// persisted value. A successful load notifies handlers, so subscribers
// registered before attachment see the stored value exactly once.
func (v *Var[T]) AttachStorage(store Store, name string) error {
	v.mu.Lock()
	v.store = store
	v.name = name
	raw, ok, err := store.Load(name)
	if err != nil {
		v.mu.Unlock()
		return fmt.Errorf("params: loading %q: %w", name, err)
	}
	if !ok {
		v.mu.Unlock()
		return nil
	}
	val, err := decode[T](raw)
	if err != nil {
		v.mu.Unlock()
		return fmt.Errorf("params: decoding %q: %w", name, err)
	}
	v.value = val
	handlers := append([]func(T){}, v.handlers...)
	v.mu.Unlock()

	for _, h := range handlers {
		h(val)
	}
	return nil
}

// AddHandler registers a change subscriber. Handlers run synchronously on
// the goroutine that called Set.
func (v *Var[T]) AddHandler(h func(T)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers = append(v.handlers, h)
}

// Get returns the current value.
func (v *Var[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores the new value, persists it when storage is attached, and
// notifies handlers. The in-memory value always updates; a persistence
// failure is logged and returned but does not roll the value back.
func (v *Var[T]) Set(val T) error {
	v.mu.Lock()
	v.value = val
	store, name := v.store, v.name
	handlers := append([]func(T){}, v.handlers...)
	v.mu.Unlock()

	var saveErr error
	if store != nil {
		if err := store.Save(name, encode(val)); err != nil {
			saveErr = fmt.Errorf("params: saving %q: %w", name, err)
			log.Printf("%v", saveErr)
		}
	}
	for _, h := range handlers {
		h(val)
	}
	return saveErr
}

func encode[T Value](v T) string {
	switch x := any(v).(type) {
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	default:
		// Named types with one of the allowed underlying types.
		return fmt.Sprintf("%v", v)
	}
}

func decode[T Value](s string) (T, error) {
	var zero T
	switch any(zero).(type) {
	case int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return zero, err
		}
		return any(n).(T), nil
	case int32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return zero, err
		}
		return any(int32(n)).(T), nil
	case int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return zero, err
		}
		return any(n).(T), nil
	case uint32:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return zero, err
		}
		return any(uint32(n)).(T), nil
	case float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return zero, err
		}
		return any(f).(T), nil
	case string:
		return any(s).(T), nil
	default:
		return zero, fmt.Errorf("params: unsupported type %T", zero)
	}
}
