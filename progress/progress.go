// Package progress tracks how many bytes pass through a writer, so
// the image build can report its write throughput.
package progress

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/liteos/fatimg/humanize"
)

// Writer counts the bytes written through it to the underlying
// writer.
type Writer struct {
	W io.Writer

	n     uint64
	start time.Time
}

func (w *Writer) Write(p []byte) (n int, err error) {
	if w.start.IsZero() {
		w.start = time.Now()
	}
	n, err = w.W.Write(p)
	atomic.AddUint64(&w.n, uint64(n))
	return n, err
}

// Transferred returns the number of bytes written so far.
func (w *Writer) Transferred() uint64 {
	return atomic.LoadUint64(&w.n)
}

// Rate returns the average transfer rate since the first write,
// formatted for humans.
func (w *Writer) Rate() string {
	elapsed := time.Since(w.start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	bps := float64(w.Transferred()) / elapsed.Seconds()
	return humanize.BPS(uint64(bps))
}
