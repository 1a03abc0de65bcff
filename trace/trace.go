// Package trace records wire traffic as a CBOR event stream for offline
// inspection and replay.
package trace

import (
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/augustjohansson/xmm7360-pci/transport"
)

// Direction of one recorded frame.
const (
	Sent     = "send"
	Received = "recv"
)

type Event struct {
	Time time.Time `cbor:"time"`
	Dir  string    `cbor:"dir"`
	Code uint32    `cbor:"code"`
	Tag  uint32    `cbor:"tag"`
	Body []byte    `cbor:"body,omitempty"`
}

// encMode uses Core Deterministic Encoding so identical traffic always
// produces identical trace bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("trace: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("trace: CBOR decoder initialization failed: " + err.Error())
	}
}

// Recorder appends one event per frame to w. Safe for concurrent use.
// Write failures do not disturb traffic; the first one is kept and
// reported by Err.
type Recorder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	err error
	now func() time.Time
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		enc: encMode.NewEncoder(w),
		now: time.Now,
	}
}

func (r *Recorder) Sent(f *transport.Frame) {
	r.record(Sent, f)
}

func (r *Recorder) Received(f *transport.Frame) {
	r.record(Received, f)
}

// Err reports the first encode failure, nil if all events were written.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) record(dir string, f *transport.Frame) {
	ev := Event{
		Time: r.now().UTC(),
		Dir:  dir,
		Code: f.Code,
		Tag:  f.Tag,
		Body: f.Body,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(ev); err != nil && r.err == nil {
		r.err = err
	}
}

// ReadAll decodes every event in a recorded stream.
func ReadAll(rd io.Reader) ([]Event, error) {
	dec := decMode.NewDecoder(rd)
	var events []Event
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, err
		}
		events = append(events, ev)
	}
}
