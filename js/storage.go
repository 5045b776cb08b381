package js

import (
	"errors"
	"slices"
	"sync"

	"github.com/dop251/goja"
)

var errOpaqueStorage = errors.New("SecurityError: localStorage is not available for opaque origins")

// Storage holds Web Storage data keyed by origin. An engine shares one
// Storage between the windows it creates, so localStorage survives reloads
// while each window gets a fresh sessionStorage.
type Storage struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewStorage creates an empty storage area.
func NewStorage() *Storage {
	return &Storage{data: make(map[string]map[string]string)}
}

// Get returns the value stored for key under origin.
func (s *Storage) Get(origin, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[origin][key]
	return v, ok
}

// Set stores value for key under origin.
func (s *Storage) Set(origin, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[origin] == nil {
		s.data[origin] = make(map[string]string)
	}
	s.data[origin][key] = value
}

// Remove deletes key under origin.
func (s *Storage) Remove(origin, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[origin], key)
}

// Clear deletes every key under origin.
func (s *Storage) Clear(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, origin)
}

// Keys returns the keys stored under origin in sorted order.
func (s *Storage) Keys(origin string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data[origin]))
	for k := range s.data[origin] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// setupStorage installs localStorage and sessionStorage. Both refuse
// access from opaque origins such as about:blank.
func (w *Window) setupStorage(vm *goja.Runtime) {
	local := w.opts.Storage
	if local == nil {
		local = NewStorage()
	}
	localObj := bindStorage(vm, local, w.doc.Origin)
	sessionObj := bindStorage(vm, NewStorage(), w.doc.Origin)

	accessor := func(obj *goja.Object) goja.Value {
		return vm.ToValue(func(goja.FunctionCall) goja.Value {
			if w.doc.Origin() == "null" {
				panic(vm.NewGoError(errOpaqueStorage))
			}
			return obj
		})
	}
	global := vm.GlobalObject()
	global.DefineAccessorProperty("localStorage", accessor(localObj), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	global.DefineAccessorProperty("sessionStorage", accessor(sessionObj), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

func bindStorage(vm *goja.Runtime, s *Storage, origin func() string) *goja.Object {
	obj := vm.NewObject()
	obj.DefineAccessorProperty("length", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(len(s.Keys(origin())))
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	obj.Set("key", func(call goja.FunctionCall) goja.Value {
		keys := s.Keys(origin())
		i := int(call.Argument(0).ToInteger())
		if i < 0 || i >= len(keys) {
			return goja.Null()
		}
		return vm.ToValue(keys[i])
	})
	obj.Set("getItem", func(call goja.FunctionCall) goja.Value {
		v, ok := s.Get(origin(), call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	obj.Set("setItem", func(call goja.FunctionCall) goja.Value {
		s.Set(origin(), call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	obj.Set("removeItem", func(call goja.FunctionCall) goja.Value {
		s.Remove(origin(), call.Argument(0).String())
		return goja.Undefined()
	})
	obj.Set("clear", func(goja.FunctionCall) goja.Value {
		s.Clear(origin())
		return goja.Undefined()
	})
	return obj
}
