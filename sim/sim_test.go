package sim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/augustjohansson/xmm7360-pci/messages"
	"github.com/augustjohansson/xmm7360-pci/rpc"
	"github.com/augustjohansson/xmm7360-pci/transport"
)

func testTable() *messages.Table {
	return messages.NewTable(map[string]uint32{
		messages.FccLockQueryReq:           0x105,
		messages.SmsInit:                   0x66,
		messages.CbsInit:                   0x67,
		messages.NetOpen:                   0x68,
		messages.CallCsInit:                0x69,
		messages.CallPsInitialize:          0x6a,
		messages.SsInit:                    0x6b,
		messages.SimOpenReq:                0x6c,
		messages.NetAttach:                 0x6d,
		messages.CallPsAttachApnConfig:     0x6e,
		messages.CallPsConnect:             0x6f,
		messages.CallPsGetNegIpAddr:        0x70,
		messages.CallPsGetNegotiatedDns:    0x71,
		messages.RPCPsConnectToDatachannel: 0x72,
	})
}

func startModem(t *testing.T) (*Modem, *rpc.Client, *messages.Session) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	table := testTable()
	m := New(table)
	go m.Serve(l)
	t.Cleanup(func() { l.Close() })

	tr, err := transport.Dial("tcp://" + l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := rpc.New(tr, rpc.WithNameFunc(table.Name))
	t.Cleanup(func() { c.Close() })
	return m, c, messages.NewSession(c, table)
}

func TestBringUpAgainstModem(t *testing.T) {
	_, _, s := startModem(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := s.Attach(ctx, "internet"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	addrs, err := s.NegotiatedIP(ctx)
	if err != nil {
		t.Fatalf("negotiated ip: %v", err)
	}
	if addrs[2].String() != "192.0.2.1" {
		t.Fatalf("got %v", addrs)
	}

	dns, err := s.NegotiatedDNS(ctx)
	if err != nil {
		t.Fatalf("negotiated dns: %v", err)
	}
	if len(dns.V4) != 1 || dns.V4[0].String() != "192.0.2.53" {
		t.Fatalf("v4 %v", dns.V4)
	}
	if len(dns.V6) != 1 || dns.V6[0].String() != "2001:db8::53" {
		t.Fatalf("v6 %v", dns.V6)
	}

	if err := s.Connect(ctx, ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func TestNotifyReachesHandlers(t *testing.T) {
	m, c, _ := startModem(t)

	got := make(chan rpc.Response, 1)
	c.HandleDefault(func(r rpc.Response) { got <- r })

	// the connection registers only after the client dials; poke until the
	// notification lands
	deadline := time.After(5 * time.Second)
	for {
		m.Notify(0x999, []byte("event"))
		select {
		case r := <-got:
			if r.Code != 0x999 || string(r.Body) != "event" {
				t.Fatalf("got %#x %q", r.Code, r.Body)
			}
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("notification never arrived")
		}
	}
}
