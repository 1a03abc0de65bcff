// Package sim implements a canned-response modem double. It speaks the
// frame protocol on any listener and answers the catalog calls with fixed,
// parseable bodies, so the client stack can run end to end without
// hardware.
package sim

import (
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/augustjohansson/xmm7360-pci/codec"
	"github.com/augustjohansson/xmm7360-pci/messages"
	"github.com/augustjohansson/xmm7360-pci/transport"
)

// Canned bearer values, from the documentation address ranges.
var (
	bearerIP = []byte{
		0, 0, 0, 0,
		0, 0, 0, 0,
		192, 0, 2, 1,
	}
	dnsV4 = []byte{192, 0, 2, 53}
	dnsV6 = []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x53}
)

func New(table *messages.Table) *Modem {
	return &Modem{
		table: table,
		conns: map[transport.Transport]struct{}{},
		log: log.WithFields(log.Fields{
			"name": "sim",
		}),
	}
}

// Modem serves one canned firmware per listener. Every transacted call is
// acknowledged and completed immediately; synchronous calls get a single
// response.
type Modem struct {
	table *messages.Table
	log   *log.Entry
	lock  sync.Mutex
	conns map[transport.Transport]struct{}
}

// Serve accepts connections until the listener closes.
func (m *Modem) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go m.handle(conn)
	}
}

// Notify pushes an unsolicited message to every connected client.
func (m *Modem) Notify(code uint32, body []byte) {
	m.lock.Lock()
	conns := make([]transport.Transport, 0, len(m.conns))
	for t := range m.conns {
		conns = append(conns, t)
	}
	m.lock.Unlock()

	f := &transport.Frame{Code: code, Body: body}
	for _, t := range conns {
		if _, err := t.Write(f); err != nil {
			m.log.WithError(err).Debug("notify write")
		}
	}
}

func (m *Modem) handle(conn net.Conn) {
	t := transport.New(conn)
	m.lock.Lock()
	m.conns[t] = struct{}{}
	m.lock.Unlock()

	defer func() {
		m.lock.Lock()
		delete(m.conns, t)
		m.lock.Unlock()
		t.Close()
	}()

	connLog := m.log.WithFields(log.Fields{
		"peer": conn.RemoteAddr().String(),
	})
	connLog.Info("client connected")

	for {
		f, err := t.Read()
		if err != nil {
			connLog.WithError(err).Debug("client gone")
			return
		}
		if err := m.respond(t, f); err != nil {
			connLog.WithError(err).Warn("respond")
			return
		}
	}
}

func (m *Modem) respond(t transport.Transport, f *transport.Frame) error {
	name := m.table.Name(f.Code)
	body := m.bodyFor(name)
	m.log.WithFields(log.Fields{
		"code": name,
		"tid":  f.TID(),
	}).Debug("call")

	if f.TID() == 0 {
		_, err := t.Write(transport.NewFrame(f.Code, 0, body))
		return err
	}
	if _, err := t.Write(transport.NewFrame(f.Code, f.TID(), nil)); err != nil {
		return err
	}
	_, err := t.Write(transport.NewFrame(f.Code, f.TID(), body))
	return err
}

func (m *Modem) bodyFor(name string) []byte {
	switch name {
	case messages.NetAttach:
		return pack("LL", 1, 0)
	case messages.FccLockQueryReq:
		return pack("LL", 0, 1)
	case messages.CallPsGetNegIpAddr:
		return pack("Ls16LLLL", 0, bearerIP, 0, 0, 0, 0)
	case messages.CallPsGetNegotiatedDns:
		return dnsBody()
	default:
		return codec.AppendInt(nil, 4, 0)
	}
}

func dnsBody() []byte {
	args := []any{0, dnsV4, 1, dnsV6, 2}
	format := "Ls16Ls16L"
	for i := 2; i < 16; i++ {
		args = append(args, []byte{}, 0)
		format += "s16L"
	}
	args = append(args, 0, []byte{}, 0, 0, 0, 0)
	return pack(format+"Ls16LLLL", args...)
}

func pack(format string, args ...any) []byte {
	out, err := codec.Pack(format, args...)
	if err != nil {
		panic("sim: " + err.Error())
	}
	return out
}
