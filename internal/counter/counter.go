// Package counter animates numeric displays from zero up to a target once
// the panel holding them scrolls into view.
package counter

import (
	"iter"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultDuration is the length of a count-up.
const DefaultDuration = 2000 * time.Millisecond

// Value is the number displayed elapsed into a count-up of the given
// duration: floor(target * elapsed/duration), and exactly target once the
// fraction reaches 1.
func Value(target int64, elapsed, duration time.Duration) int64 {
	if duration <= 0 {
		return target
	}
	progress := float64(elapsed) / float64(duration)
	if progress >= 1 {
		return target
	}
	if progress <= 0 {
		return 0
	}
	return int64(math.Floor(float64(target) * progress))
}

// Sequence yields the values a counter displays for successive frame
// timestamps. Elapsed time is measured from the first frame. An unarmed
// counter yields a single 0. The sequence ends, and stops pulling frames,
// with the frame that reaches target.
func Sequence(target int64, duration time.Duration, armed bool, frames iter.Seq[time.Duration]) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		if !armed {
			yield(0)
			return
		}
		var start time.Duration
		first := true
		for now := range frames {
			if first {
				start, first = now, false
			}
			elapsed := now - start
			if !yield(Value(target, elapsed, duration)) {
				return
			}
			if elapsed >= duration {
				return
			}
		}
	}
}

var printer = message.NewPrinter(language.English)

// Format renders n with thousands separators.
func Format(n int64) string {
	return printer.Sprintf("%d", n)
}
