//go:build js && wasm

// Command impact-counter drives the count-up numbers on the Impact page.
// Build with GOOS=js GOARCH=wasm and serve as /static/impact.wasm.
package main

import (
	"strconv"
	"syscall/js"
	"time"

	"connectkids/internal/counter"
	"connectkids/internal/counter/browser"
)

func main() {
	document := js.Global().Get("document")
	frames := browser.NewFrames()

	var panels []*counter.Panel
	nodes := document.Call("querySelectorAll", "[data-counter-panel]")
	for i := 0; i < nodes.Length(); i++ {
		el := nodes.Index(i)
		p := counter.NewPanel(browser.NewViewport(el), frames, panelCounters(el)...)
		p.Mount()
		panels = append(panels, p)
	}
	if len(panels) == 0 {
		return
	}

	done := make(chan struct{})
	var onHide js.Func
	onHide = js.FuncOf(func(this js.Value, args []js.Value) any {
		for _, p := range panels {
			p.Dispose()
		}
		js.Global().Call("removeEventListener", "pagehide", onHide)
		onHide.Release()
		close(done)
		return nil
	})
	js.Global().Call("addEventListener", "pagehide", onHide)
	<-done
}

func panelCounters(panel js.Value) []counter.Counter {
	var out []counter.Counter
	nodes := panel.Call("querySelectorAll", "[data-counter-target]")
	for i := 0; i < nodes.Length(); i++ {
		el := nodes.Index(i)
		target, err := strconv.ParseInt(el.Get("dataset").Get("counterTarget").String(), 10, 64)
		if err != nil {
			js.Global().Get("console").Call("error", "counter target", err.Error())
			continue
		}
		duration := counter.DefaultDuration
		if ms, err := strconv.Atoi(el.Get("dataset").Get("counterDuration").String()); err == nil && ms > 0 {
			duration = time.Duration(ms) * time.Millisecond
		}
		suffix := el.Get("dataset").Get("counterSuffix")
		out = append(out, counter.Counter{
			Target:   target,
			Duration: duration,
			Display: func(v int64) {
				text := counter.Format(v)
				if suffix.Type() == js.TypeString {
					text += suffix.String()
				}
				el.Set("textContent", text)
			},
		})
	}
	return out
}
