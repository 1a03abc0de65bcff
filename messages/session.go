// Package messages
package messages

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/augustjohansson/xmm7360-pci/rpc"
)

var (
	// ErrUnknownCommand means the loaded table carries no code for a
	// command the session needs.
	ErrUnknownCommand = errors.New("messages: command not in table")

	// ErrAttachRejected means the network refused the attach request.
	ErrAttachRejected = errors.New("messages: network attach rejected")
)

// attachRejected is the status word of a refused attach.
const attachRejected = 0xffffffff

// Caller is the slice of the RPC client the session drives.
type Caller interface {
	Call(ctx context.Context, code uint32, body []byte) (rpc.Response, error)
	CallTransacted(ctx context.Context, code uint32, body []byte) (rpc.Response, error)
}

// Session sequences the calls that bring the modem from cold to an attached
// bearer with a connected data channel.
type Session struct {
	c     Caller
	table *Table
	log   *log.Entry
}

func NewSession(c Caller, table *Table) *Session {
	return &Session{
		c:     c,
		table: table,
		log: log.WithFields(log.Fields{
			"name": "session",
		}),
	}
}

func (s *Session) code(name string) (uint32, error) {
	code, ok := s.table.Code(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return code, nil
}

// Init runs the firmware bring-up: the FCC lock query first, then the
// subsystem init calls in the stock order.
func (s *Session) Init(ctx context.Context) error {
	status, err := s.FCCLockQuery(ctx)
	if err != nil {
		return err
	}
	s.log.WithFields(log.Fields{
		"status": fmt.Sprintf("% x", status),
	}).Info("fcc lock status")

	for _, name := range initSequence {
		code, err := s.code(name)
		if err != nil {
			return err
		}
		if _, err := s.c.Call(ctx, code, nil); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.log.WithFields(log.Fields{
			"command": name,
		}).Debug("initialized")
	}
	return nil
}

// FCCLockQuery reads the regulatory lock state, payload raw as the firmware
// reports it.
func (s *Session) FCCLockQuery(ctx context.Context) ([]byte, error) {
	code, err := s.code(FccLockQueryReq)
	if err != nil {
		return nil, err
	}
	resp, err := s.c.CallTransacted(ctx, code, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FccLockQueryReq, err)
	}
	return resp.Body, nil
}

// Attach pushes the APN configuration and requests network attach.
func (s *Session) Attach(ctx context.Context, apn string) error {
	body, err := AttachAPNConfigReq(apn)
	if err != nil {
		return err
	}
	code, err := s.code(CallPsAttachApnConfig)
	if err != nil {
		return err
	}
	if _, err := s.c.CallTransacted(ctx, code, body); err != nil {
		return fmt.Errorf("%s: %w", CallPsAttachApnConfig, err)
	}

	code, err = s.code(NetAttach)
	if err != nil {
		return err
	}
	resp, err := s.c.CallTransacted(ctx, code, NetAttachReq())
	if err != nil {
		return fmt.Errorf("%s: %w", NetAttach, err)
	}
	status, err := ParseAttachStatus(resp.Body)
	if err != nil {
		return err
	}
	if status == attachRejected {
		return ErrAttachRejected
	}
	s.log.WithFields(log.Fields{
		"status": status,
		"apn":    apn,
	}).Info("attached")
	return nil
}

// NegotiatedIP reads the three addresses of the negotiated bearer.
func (s *Session) NegotiatedIP(ctx context.Context) ([3]netip.Addr, error) {
	var out [3]netip.Addr
	code, err := s.code(CallPsGetNegIpAddr)
	if err != nil {
		return out, err
	}
	resp, err := s.c.CallTransacted(ctx, code, GetNegIPAddrReq())
	if err != nil {
		return out, fmt.Errorf("%s: %w", CallPsGetNegIpAddr, err)
	}
	return ParseNegIPAddr(resp.Body)
}

// NegotiatedDNS reads the resolvers the network offered.
func (s *Session) NegotiatedDNS(ctx context.Context) (DNSServers, error) {
	code, err := s.code(CallPsGetNegotiatedDns)
	if err != nil {
		return DNSServers{}, err
	}
	resp, err := s.c.CallTransacted(ctx, code, GetNegotiatedDNSReq())
	if err != nil {
		return DNSServers{}, fmt.Errorf("%s: %w", CallPsGetNegotiatedDns, err)
	}
	return ParseNegotiatedDNS(resp.Body)
}

// Connect activates the bearer and points it at the data channel endpoint.
// An empty path means the stock PCIe endpoint.
func (s *Session) Connect(ctx context.Context, path string) error {
	if path == "" {
		path = DefaultDatachannelPath
	}
	code, err := s.code(CallPsConnect)
	if err != nil {
		return err
	}
	if _, err := s.c.CallTransacted(ctx, code, PsConnectReq()); err != nil {
		return fmt.Errorf("%s: %w", CallPsConnect, err)
	}

	body, err := ConnectDatachannelReq(path)
	if err != nil {
		return err
	}
	code, err = s.code(RPCPsConnectToDatachannel)
	if err != nil {
		return err
	}
	if _, err := s.c.Call(ctx, code, body); err != nil {
		return fmt.Errorf("%s: %w", RPCPsConnectToDatachannel, err)
	}
	s.log.WithFields(log.Fields{
		"path": path,
	}).Info("data channel connected")
	return nil
}
