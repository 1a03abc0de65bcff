// Package rpc drives the request side of the modem RPC channel: it frames
// outbound calls, reassembles inbound frames and routes them to the caller
// that owns them.
//
// Three call shapes exist. Synchronous calls carry the bare channel tag, so
// the firmware response has no id to match on; the client serializes them
// and hands the next synchronous response to the single in-flight caller.
// Transacted calls carry a transaction id and come back twice, first as an
// acknowledgment, then as a completion. Unsolicited messages arrive on their
// own and go to registered handlers.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/augustjohansson/xmm7360-pci/codec"
	"github.com/augustjohansson/xmm7360-pci/observability"
	"github.com/augustjohansson/xmm7360-pci/transport"
)

// echoLength is the generic-integer copy of the tag word heading a
// transacted body.
const echoLength = 6

// Response is one firmware reply: the response code and the undecoded body.
type Response struct {
	Code uint32
	Body []byte
}

// Callback consumes the completion of an asynchronous call. It runs on the
// client's worker pool.
type Callback = func(Response)

type pendingCall struct {
	tid          uint8
	acknowledged bool
	ack          []byte
	callback     Callback
}

func New(t transport.Transport, options ...Option) *Client {
	opt := defaultOptions()
	opt.Apply(options)

	c := &Client{
		t:           t,
		id:          uuid.New().String(),
		pending:     map[uint8]*pendingCall{},
		handlers:    newHandlerTable(),
		completions: make(chan func(), opt.QueueSize),
		closeNotify: make(chan struct{}),
		tracer:      opt.Tracer,
		nameOf:      opt.NameFunc,
	}
	c.log = opt.Logger
	if c.log == nil {
		c.log = log.WithFields(log.Fields{
			"name":   "rpc",
			"client": c.id,
		})
	}

	c.wg.Add(1 + opt.Workers)
	go c.readLoop()
	for i := 0; i < opt.Workers; i++ {
		go c.worker()
	}
	return c
}

type Client struct {
	t  transport.Transport
	id string

	writeMu sync.Mutex // one frame on the wire at a time

	syncMu sync.Mutex // serializes synchronous calls; their frames carry no id

	mu         sync.Mutex
	pending    map[uint8]*pendingCall
	tidCursor  uint8
	syncWaiter chan Response

	handlers    *handlerTable
	completions chan func()

	closeOnce   sync.Once
	closeNotify chan struct{}
	closeErr    error
	wg          sync.WaitGroup

	errMu sync.Mutex
	err   error

	tracer Tracer
	nameOf func(uint32) string
	log    *log.Entry
}

func (c *Client) ID() string {
	return c.id
}

// Call issues a synchronous request and blocks for its response. A nil body
// sends the default zero argument.
func (c *Client) Call(ctx context.Context, code uint32, body []byte) (Response, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if c.isClosed() {
		return Response{}, c.closeReason()
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	c.syncWaiter = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.syncWaiter = nil
		c.mu.Unlock()
	}()

	if err := c.execute(code, 0, body); err != nil {
		return Response{}, err
	}

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-c.closeNotify:
		return Response{}, c.closeReason()
	}
}

// CallAsync issues a transacted request and returns its transaction id
// without waiting. The callback, if any, runs once the completion arrives;
// the intermediate acknowledgment is swallowed.
func (c *Client) CallAsync(code uint32, body []byte, fn Callback) (uint8, error) {
	if c.isClosed() {
		return 0, c.closeReason()
	}

	c.mu.Lock()
	tid, err := c.nextTIDLocked()
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.pending[tid] = &pendingCall{tid: tid, callback: fn}
	observability.SetPendingTransactions(len(c.pending))
	c.mu.Unlock()

	if err := c.execute(code, tid, body); err != nil {
		c.mu.Lock()
		delete(c.pending, tid)
		observability.SetPendingTransactions(len(c.pending))
		c.mu.Unlock()
		return 0, err
	}
	return tid, nil
}

// CallTransacted issues a transacted request and blocks for its completion.
func (c *Client) CallTransacted(ctx context.Context, code uint32, body []byte) (Response, error) {
	ch := make(chan Response, 1)
	if _, err := c.CallAsync(code, body, func(r Response) { ch <- r }); err != nil {
		return Response{}, err
	}

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-c.closeNotify:
		return Response{}, c.closeReason()
	}
}

// Handle registers fn for unsolicited messages carrying code. A nil fn
// removes the registration. Handlers run on the worker pool.
func (c *Client) Handle(code uint32, fn Handler) {
	c.handlers.add(code, fn)
}

// HandleDefault registers fn for unsolicited messages with no per-code
// handler.
func (c *Client) HandleDefault(fn Handler) {
	c.handlers.setFallback(fn)
}

// Err reports the terminal transport error, nil while the client is healthy
// or was closed deliberately.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Done is closed once the client shuts down, whether by Close or by a
// transport failure.
func (c *Client) Done() <-chan struct{} {
	return c.closeNotify
}

// Close tears the client down: the pending read is canceled, the reader and
// worker pool drain, blocked callers fail with ErrClosed.
func (c *Client) Close() error {
	c.shutdown()
	c.wg.Wait()
	return c.closeErr
}

// execute writes one frame. Every send funnels through here.
func (c *Client) execute(code uint32, tid uint8, body []byte) error {
	if body == nil {
		body = codec.AppendInt(nil, 4, 0)
	}
	f := transport.NewFrame(code, tid, body)
	if c.tracer != nil {
		c.tracer.Sent(f)
	}

	c.writeMu.Lock()
	n, err := c.t.Write(f)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("rpc: write %s: %w", c.codeName(code), err)
	}
	if n != f.WireSize() {
		c.log.WithFields(log.Fields{
			"code":    c.codeName(code),
			"written": n,
			"size":    f.WireSize(),
		}).Warn("short frame write")
	}
	observability.RecordFrameSent(frameKind(f), n)
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		close(c.completions)
		c.wg.Done()
	}()

	for {
		f, err := c.t.Read()
		if err != nil {
			if c.isClosed() {
				return
			}
			if errors.Is(err, transport.ErrFrameMalformed) {
				observability.RecordFramingAnomaly()
				c.log.WithError(err).Warn("dropped malformed frame")
				continue
			}
			c.setErr(fmt.Errorf("rpc: transport read: %w", err))
			c.log.WithError(err).Error("transport read failed")
			c.shutdown()
			return
		}
		c.handleFrame(f)
	}
}

func (c *Client) handleFrame(f *transport.Frame) {
	if c.tracer != nil {
		c.tracer.Received(f)
	}
	observability.RecordFrameReceived(frameKind(f), f.WireSize())

	if f.LengthMismatch() {
		observability.RecordFramingAnomaly()
		c.log.WithFields(log.Fields{
			"prefix":   f.TotalLength,
			"embedded": f.EmbeddedLength,
		}).Warn("frame length fields disagree")
	}

	switch {
	case f.IsUnsolicited():
		c.handleUnsolicited(f)
	case f.IsSync():
		c.handleSync(f)
	default:
		c.handleTransacted(f)
	}
}

func (c *Client) handleUnsolicited(f *transport.Frame) {
	fn := c.handlers.get(f.Code)
	if fn == nil {
		c.log.WithFields(log.Fields{
			"code": c.codeName(f.Code),
			"len":  len(f.Body),
		}).Debug("unsolicited message")
		return
	}
	r := Response{Code: f.Code, Body: f.Body}
	c.completions <- func() { fn(r) }
}

func (c *Client) handleSync(f *transport.Frame) {
	c.mu.Lock()
	ch := c.syncWaiter
	c.syncWaiter = nil
	c.mu.Unlock()

	if ch == nil {
		c.log.WithFields(log.Fields{
			"code": c.codeName(f.Code),
		}).Warn("synchronous response with no caller")
		return
	}
	ch <- Response{Code: f.Code, Body: f.Body}
}

// handleTransacted walks a transaction through its two inbound frames: the
// acknowledgment is recorded and swallowed, the completion ends the
// transaction and hands the body past the echoed tag word to the callback.
func (c *Client) handleTransacted(f *transport.Frame) {
	tid := f.TID()

	c.mu.Lock()
	call, ok := c.pending[tid]
	if !ok {
		c.mu.Unlock()
		observability.RecordUnknownTransaction()
		c.log.WithFields(log.Fields{
			"tid":  tid,
			"code": c.codeName(f.Code),
		}).Warn("unexpected transaction")
		return
	}
	if !call.acknowledged {
		call.acknowledged = true
		call.ack = f.Body
		c.mu.Unlock()
		c.log.WithFields(log.Fields{
			"tid":  tid,
			"code": c.codeName(f.Code),
		}).Debug("transaction acknowledged")
		return
	}
	delete(c.pending, tid)
	observability.SetPendingTransactions(len(c.pending))
	c.mu.Unlock()

	if len(f.Body) < echoLength {
		c.log.WithFields(log.Fields{
			"tid": tid,
			"len": len(f.Body),
		}).Warn("completion too short for tag echo")
		return
	}
	r := Response{Code: f.Code, Body: f.Body[echoLength:]}
	if call.callback != nil {
		c.completions <- func() { call.callback(r) }
	}
}

func (c *Client) worker() {
	defer c.wg.Done()
	for fn := range c.completions {
		fn()
	}
}

// nextTIDLocked yields the next id in 1..255, skipping ids still pending.
// c.mu must be held.
func (c *Client) nextTIDLocked() (uint8, error) {
	for i := 0; i < 255; i++ {
		c.tidCursor++
		if c.tidCursor == 0 {
			c.tidCursor = 1
		}
		if _, busy := c.pending[c.tidCursor]; !busy {
			return c.tidCursor, nil
		}
	}
	return 0, ErrTransactionsExhausted
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closeNotify)
		if err := c.t.CancelRead(); err != nil && !errors.Is(err, transport.ErrCancelUnsupported) {
			c.log.WithError(err).Warn("cancel pending read")
		}
		c.closeErr = c.t.Close()
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closeNotify:
		return true
	default:
		return false
	}
}

func (c *Client) closeReason() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *Client) codeName(code uint32) string {
	if c.nameOf != nil {
		if name := c.nameOf(code); name != "" {
			return name
		}
	}
	return fmt.Sprintf("0x%x", code)
}

func frameKind(f *transport.Frame) string {
	switch {
	case f.IsUnsolicited():
		return "unsolicited"
	case f.IsSync():
		return "sync"
	}
	return "transacted"
}
