// Package hooking lets observers attach to the bridge components without the
// components knowing who is watching.
package hooking

// HookPos names a site where hooks are invoked.
type HookPos struct {
	Name string
}

// HookCtx carries what a hook needs to know about the site that triggered it.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
}

// Hook is invoked by a hookable object.
type Hook interface {
	Func(ctx HookCtx)
}

// Named describes an object that has a name.
type Named interface {
	Name() string
}

// NamedHookable is something that has a name, accepts hooks and can invoke
// them.
type NamedHookable interface {
	Named
	Hookable
	InvokeHook(ctx HookCtx)
}

// A HookableBase implements Hookable. Hooks are registered while the
// component is being wired, before it handles any traffic.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns the registered hooks.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, existing := range h.hookList {
		if existing == hook {
			panic("duplicated hook")
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook triggers the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

// Base is embedded by components that are named and hookable.
type Base struct {
	HookableBase
	name string
}

// MakeBase creates a Base with the given name.
func MakeBase(name string) Base {
	return Base{name: name}
}

// Name returns the name of the component.
func (b *Base) Name() string {
	return b.name
}
