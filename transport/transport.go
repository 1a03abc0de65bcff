// Package transport
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"
)

var (
	ErrFrameBounds       = errors.New("transport: frame length out of bounds")
	ErrShortFrame        = errors.New("transport: frame shorter than header")
	ErrCancelUnsupported = errors.New("transport: pending read not cancelable")

	// ErrFrameMalformed flags a frame whose header fields failed to decode
	// even though its length prefix was honored. Reading may continue.
	ErrFrameMalformed = errors.New("transport: malformed frame header")
)

// Transport carries whole frames over a duplex byte stream. Read blocks
// until a frame arrives; CancelRead unblocks a pending Read so the owner can
// shut down.
type Transport interface {
	Read() (*Frame, error)
	Write(*Frame) (int, error)
	CancelRead() error
	Close() error
}

type Options struct {
	MaxFrameSize uint32
}

type Option = func(opt *Options)

func WithMaxFrameSize(n uint32) Option {
	return func(opt *Options) {
		opt.MaxFrameSize = n
	}
}

func New(c io.ReadWriteCloser, opts ...Option) Transport {
	var opt Options
	for _, o := range opts {
		o(&opt)
	}
	return &transport{
		frameReader: newFrameReader(c, opt.MaxFrameSize),
		frameWriter: newFrameWriter(c),
		rwc:         c,
	}
}

type transport struct {
	*frameReader
	*frameWriter
	wmu sync.Mutex
	rwc io.ReadWriteCloser
}

func (t *transport) Write(m *Frame) (int, error) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.frameWriter.Write(m)
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

func (t *transport) CancelRead() error {
	d, ok := t.rwc.(readDeadliner)
	if !ok {
		return ErrCancelUnsupported
	}
	return d.SetReadDeadline(time.Now())
}

func (t *transport) Close() error {
	return t.rwc.Close()
}

// Dial opens a transport from a URL. dev:// opens a character device,
// tcp:// and unix:// dial a socket, ws:// and wss:// dial a websocket
// endpoint. A bare path is treated as a device path.
func Dial(rawURL string, opts ...Option) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return OpenDevice(rawURL, opts...)
	}

	switch u.Scheme {
	case "dev":
		return OpenDevice(u.Path, opts...)
	case "tcp":
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return New(conn, opts...), nil
	case "unix":
		conn, err := net.Dial("unix", u.Path)
		if err != nil {
			return nil, err
		}
		return New(conn, opts...), nil
	case "ws", "wss":
		return DialWebsocket(rawURL, opts...)
	}
	return nil, fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
}
