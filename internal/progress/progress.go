// Package progress renders dataset evaluation progress on stderr.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar counting evaluated datasets. A tracker over
// fewer than two datasets draws nothing but still counts.
type Tracker struct {
	bar   *progressbar.ProgressBar
	out   io.Writer
	label string
	done  atomic.Int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWriter sends the bar and finish messages to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(t *Tracker) {
		t.out = w
	}
}

// NewTracker creates a progress bar with the given label and dataset count.
func NewTracker(label string, total int, opts ...Option) *Tracker {
	t := newTracker(label, opts)
	if total < 2 {
		return t
	}
	t.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return t
}

func newTracker(label string, opts []Option) *Tracker {
	t := &Tracker{label: label, out: os.Stderr}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tick records one finished dataset. Safe for concurrent use.
func (t *Tracker) Tick() {
	t.done.Add(1)
	if t.bar != nil {
		t.bar.Add(1)
	}
}

// Done returns the number of ticks so far.
func (t *Tracker) Done() int {
	return int(t.done.Load())
}

// Enabled reports whether the tracker draws a bar.
func (t *Tracker) Enabled() bool {
	return t.bar != nil
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	t.clear()
}

// FinishFailed clears the bar and prints how many datasets failed.
func (t *Tracker) FinishFailed(failed int) {
	t.clear()
	fmt.Fprintf(t.out, "  %s: %d of %d datasets failed\n", t.label, failed, t.Done())
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	t.clear()
	fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
}

func (t *Tracker) clear() {
	if t.bar == nil {
		return
	}
	t.bar.Finish()
	t.bar.Clear()
}
