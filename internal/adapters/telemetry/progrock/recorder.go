// Package progrock provides the Progrock implementation of the telemetry adapter.
package progrock

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/builder/internal/core/ports"
)

var _ ports.Telemetry = (*Recorder)(nil)

// Recorder implements ports.Telemetry on a progrock tape. Every call to
// Record is a separate vertex, so retries of a job are recorded apart.
// Vertex output is also copied to out, prefixed with the job id.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder
	out *lockedWriter
	seq atomic.Uint64
}

// New creates a new Recorder with a default tape, echoing job output to out.
func New(out io.Writer) *Recorder {
	return NewRecorder(progrock.NewTape(), out)
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer, out io.Writer) *Recorder {
	if out == nil {
		out = io.Discard
	}
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
		out: &lockedWriter{w: out},
	}
}

// Record starts recording a new vertex.
func (r *Recorder) Record(ctx context.Context, name string, opts ...ports.VertexOption) (context.Context, ports.Vertex) {
	cfg := &ports.VertexConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	d := digest.FromString(fmt.Sprintf("%s/%s#%d", cfg.Group, name, r.seq.Add(1)))
	vertex := &Vertex{
		vertex: r.rec.Vertex(d, name),
		stdout: &prefixWriter{out: r.out, prefix: "[" + name + "] "},
		stderr: &prefixWriter{out: r.out, prefix: "[" + name + "] "},
	}
	return ports.ContextWithVertex(ctx, vertex), vertex
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// lockedWriter serialises writes from concurrently running jobs.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
