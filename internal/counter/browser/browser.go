//go:build js && wasm

// Package browser adapts requestAnimationFrame and IntersectionObserver to
// the counter package.
package browser

import (
	"sync"
	"syscall/js"
	"time"

	"connectkids/internal/counter"
)

// VisibleThreshold is the fraction of the panel that must be on screen.
const VisibleThreshold = 0.1

// Frames schedules callbacks with window.requestAnimationFrame.
type Frames struct {
	window js.Value
}

func NewFrames() *Frames {
	return &Frames{window: js.Global()}
}

func (f *Frames) RequestFrame(fn func(now time.Duration)) func() {
	var once sync.Once
	var cb js.Func
	release := func() { once.Do(cb.Release) }

	cb = js.FuncOf(func(this js.Value, args []js.Value) any {
		release()
		var ms float64
		if len(args) > 0 {
			ms = args[0].Float()
		}
		fn(time.Duration(ms * float64(time.Millisecond)))
		return nil
	})
	id := f.window.Call("requestAnimationFrame", cb)

	return func() {
		f.window.Call("cancelAnimationFrame", id)
		release()
	}
}

// Viewport watches one element with an IntersectionObserver.
type Viewport struct {
	element js.Value
}

func NewViewport(element js.Value) *Viewport {
	return &Viewport{element: element}
}

func (v *Viewport) Observe(onVisible func()) func() {
	cb := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		entries := args[0]
		if entries.Length() > 0 && entries.Index(0).Get("isIntersecting").Bool() {
			onVisible()
		}
		return nil
	})

	options := js.Global().Get("Object").New()
	options.Set("threshold", VisibleThreshold)
	observer := js.Global().Get("IntersectionObserver").New(cb, options)
	observer.Call("observe", v.element)

	var once sync.Once
	return func() {
		once.Do(func() {
			observer.Call("disconnect")
			cb.Release()
		})
	}
}

var (
	_ counter.Scheduler = (*Frames)(nil)
	_ counter.Viewport  = (*Viewport)(nil)
)
