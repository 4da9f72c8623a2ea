// Package progress renders search throughput for the terminal. It is a thin
// consumer of the scheduler's completed counter: speed and ETA are derived
// here, never computed by workers.
package progress

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Reporter drives a terminal progress bar from coordinator samples. It
// implements the scheduler's ProgressSink. All methods are called from the
// coordinator goroutine only.
type Reporter struct {
	out     io.Writer
	bar     *progressbar.ProgressBar
	start   time.Time
	offset  *big.Int
	total   *big.Int
	bounded bool
	last    uint64
}

// NewReporter writes the bar to out; nil means stderr.
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stderr
	}
	return &Reporter{out: out}
}

// Begin starts the bar over [0, total) with resume already credited. Rank
// domains beyond int64 fall back to a spinner with a running count; the bar
// widget cannot represent them.
func (r *Reporter) Begin(total, resume *big.Int) {
	r.start = time.Now()
	r.offset = new(big.Int).Set(resume)
	r.total = new(big.Int).Set(total)
	r.bounded = total.IsInt64()

	max := int64(-1)
	if r.bounded {
		max = total.Int64()
	}
	r.bar = progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription("searching"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("candidates"),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	if r.bounded && resume.Sign() > 0 {
		r.bar.Set64(resume.Int64())
	}
}

// Observe advances the bar to offset+completed.
func (r *Reporter) Observe(completed uint64) {
	if r.bar == nil {
		return
	}
	if r.bounded {
		pos := new(big.Int).Add(r.offset, new(big.Int).SetUint64(completed))
		r.bar.Set64(pos.Int64())
	} else {
		r.bar.Add64(int64(completed - r.last))
		pos := new(big.Int).Add(r.offset, new(big.Int).SetUint64(completed))
		r.bar.Describe(fmt.Sprintf("searching %s/%s", pos.String(), r.total.String()))
	}
	r.last = completed
}

// Finish closes out the bar.
func (r *Reporter) Finish() {
	if r.bar == nil {
		return
	}
	r.bar.Finish()
	fmt.Fprintln(r.out)
}

// Elapsed returns the wall time since Begin.
func (r *Reporter) Elapsed() time.Duration {
	if r.start.IsZero() {
		return 0
	}
	return time.Since(r.start)
}

// Speed returns the average candidates per second over this run.
func (r *Reporter) Speed() float64 {
	elapsed := r.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.last) / elapsed
}
