package js

import (
	"github.com/dop251/goja"
)

// eventListener represents a registered event listener.
type eventListener struct {
	id       int
	callback goja.Callable
	value    goja.Value // Original value for comparison
	once     bool
}

// EventTarget manages the script listeners of one target. It is only
// touched while the runtime lock is held.
type EventTarget struct {
	listeners map[string][]eventListener
	nextID    int
}

// newEventTarget creates a new EventTarget.
func newEventTarget() *EventTarget {
	return &EventTarget{
		listeners: make(map[string][]eventListener),
	}
}

// add registers a listener. Registering the same function twice for the
// same type is a no-op.
func (et *EventTarget) add(eventType string, callback goja.Callable, value goja.Value, once bool) {
	for _, l := range et.listeners[eventType] {
		if l.value.SameAs(value) {
			return
		}
	}

	et.nextID++
	et.listeners[eventType] = append(et.listeners[eventType], eventListener{
		id:       et.nextID,
		callback: callback,
		value:    value,
		once:     once,
	})
}

// remove unregisters a listener.
func (et *EventTarget) remove(eventType string, value goja.Value) {
	listeners := et.listeners[eventType]
	for i, l := range listeners {
		if l.value.SameAs(value) {
			et.listeners[eventType] = append(listeners[:i:i], listeners[i+1:]...)
			return
		}
	}
}

func (et *EventTarget) removeID(eventType string, id int) {
	listeners := et.listeners[eventType]
	for i, l := range listeners {
		if l.id == id {
			et.listeners[eventType] = append(listeners[:i:i], listeners[i+1:]...)
			return
		}
	}
}

// fire invokes the listeners registered for the event's type with this
// bound to current. Listener exceptions are reported through report and do
// not stop dispatch. It returns false once stopImmediatePropagation was
// called.
func (et *EventTarget) fire(event *goja.Object, current goja.Value, report func(error)) bool {
	eventType := event.Get("type").String()
	listeners := append([]eventListener(nil), et.listeners[eventType]...)

	for _, l := range listeners {
		if l.once {
			et.removeID(eventType, l.id)
		}
		if _, err := l.callback(current, event); err != nil {
			report(err)
		}
		if flag(event, "_stopImmediate") {
			return false
		}
	}
	return true
}

func flag(obj *goja.Object, name string) bool {
	v := obj.Get(name)
	return v != nil && v.ToBoolean()
}

// eventInit holds the dictionary members accepted by the Event constructors.
type eventInit struct {
	bubbles    bool
	cancelable bool
	detail     goja.Value
}

func parseEventInit(vm *goja.Runtime, arg goja.Value) eventInit {
	init := eventInit{detail: goja.Null()}
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) {
		return init
	}
	obj := arg.ToObject(vm)
	if v := obj.Get("bubbles"); v != nil {
		init.bubbles = v.ToBoolean()
	}
	if v := obj.Get("cancelable"); v != nil {
		init.cancelable = v.ToBoolean()
	}
	if v := obj.Get("detail"); v != nil && !goja.IsUndefined(v) {
		init.detail = v
	}
	return init
}

// newEvent creates a new Event object.
func newEvent(vm *goja.Runtime, eventType string, init eventInit) *goja.Object {
	event := vm.NewObject()

	event.Set("type", eventType)
	event.Set("target", goja.Null())
	event.Set("currentTarget", goja.Null())
	event.Set("bubbles", init.bubbles)
	event.Set("cancelable", init.cancelable)
	event.Set("defaultPrevented", false)
	event.Set("isTrusted", false)
	event.Set("detail", init.detail)

	// Internal flags
	event.Set("_stopPropagation", false)
	event.Set("_stopImmediate", false)

	event.Set("preventDefault", func(call goja.FunctionCall) goja.Value {
		if event.Get("cancelable").ToBoolean() {
			event.Set("defaultPrevented", true)
		}
		return goja.Undefined()
	})

	event.Set("stopPropagation", func(call goja.FunctionCall) goja.Value {
		event.Set("_stopPropagation", true)
		return goja.Undefined()
	})

	event.Set("stopImmediatePropagation", func(call goja.FunctionCall) goja.Value {
		event.Set("_stopPropagation", true)
		event.Set("_stopImmediate", true)
		return goja.Undefined()
	})

	return event
}

// setupEventConstructors sets up Event and CustomEvent constructors on the global object.
func setupEventConstructors(vm *goja.Runtime) {
	construct := func(call goja.ConstructorCall) *goja.Object {
		eventType := ""
		if len(call.Arguments) > 0 {
			eventType = call.Arguments[0].String()
		}
		return newEvent(vm, eventType, parseEventInit(vm, call.Argument(1)))
	}
	vm.Set("Event", construct)
	vm.Set("CustomEvent", construct)
	vm.Set("MessageEvent", func(call goja.ConstructorCall) *goja.Object {
		event := construct(call)
		init := call.Argument(1)
		if !goja.IsUndefined(init) && !goja.IsNull(init) {
			obj := init.ToObject(vm)
			event.Set("data", obj.Get("data"))
			event.Set("origin", obj.Get("origin"))
		}
		return event
	})
}

// bindEventTarget adds the EventTarget interface methods to obj. dispatch
// performs the propagation for dispatchEvent.
func bindEventTarget(vm *goja.Runtime, obj *goja.Object, target *EventTarget, dispatch func(event *goja.Object) bool) {
	obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			return goja.Undefined()
		}
		callback, ok := goja.AssertFunction(call.Arguments[1])
		if !ok {
			return goja.Undefined()
		}
		once := false
		if opts := call.Argument(2); !goja.IsUndefined(opts) && !goja.IsNull(opts) {
			if o, isObj := opts.(*goja.Object); isObj {
				once = flag(o, "once")
			}
		}
		target.add(call.Arguments[0].String(), callback, call.Arguments[1], once)
		return goja.Undefined()
	})

	obj.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			return goja.Undefined()
		}
		target.remove(call.Arguments[0].String(), call.Arguments[1])
		return goja.Undefined()
	})

	obj.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		event, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(vm.NewTypeError("Failed to execute 'dispatchEvent': parameter 1 is not of type 'Event'."))
		}
		return vm.ToValue(dispatch(event))
	})
}
