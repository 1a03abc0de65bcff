// Package rpc
package rpc

import (
	log "github.com/sirupsen/logrus"

	"github.com/augustjohansson/xmm7360-pci/transport"
)

type Option = func(*Options)

// Tracer observes every frame crossing the transport.
type Tracer interface {
	Sent(*transport.Frame)
	Received(*transport.Frame)
}

type Options struct {
	Logger    *log.Entry
	Workers   int
	QueueSize int
	Tracer    Tracer
	NameFunc  func(code uint32) string
}

// WithLogger replaces the per-client log entry.
func WithLogger(e *log.Entry) Option {
	return func(op *Options) {
		op.Logger = e
	}
}

// WithWorkers sets the number of goroutines delivering completions and
// unsolicited messages.
func WithWorkers(n int) Option {
	return func(op *Options) {
		op.Workers = n
	}
}

// WithQueueSize sets the completion queue depth. The reader blocks once the
// queue is full.
func WithQueueSize(n int) Option {
	return func(op *Options) {
		op.QueueSize = n
	}
}

func WithTracer(tr Tracer) Option {
	return func(op *Options) {
		op.Tracer = tr
	}
}

// WithNameFunc supplies command names for log fields, for example from a
// loaded command table.
func WithNameFunc(f func(code uint32) string) Option {
	return func(op *Options) {
		op.NameFunc = f
	}
}

func (op *Options) Apply(options []Option) {
	for _, f := range options {
		f(op)
	}
}

func defaultOptions() *Options {
	return &Options{
		Workers:   4,
		QueueSize: 16,
	}
}
