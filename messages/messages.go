// Package messages carries the command catalog of the modem firmware: body
// builders and response parsers for the calls the driver issues, plus the
// name-to-code table loaded per firmware build.
package messages

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/augustjohansson/xmm7360-pci/codec"
)

// Command names as the firmware's unpack table spells them.
const (
	FccLockQueryReq           = "CsiFccLockQueryReq"
	SmsInit                   = "UtaMsSmsInit"
	CbsInit                   = "UtaMsCbsInit"
	NetOpen                   = "UtaMsNetOpen"
	CallCsInit                = "UtaMsCallCsInit"
	CallPsInitialize          = "UtaMsCallPsInitialize"
	SsInit                    = "UtaMsSsInit"
	SimOpenReq                = "UtaMsSimOpenReq"
	NetAttach                 = "UtaMsNetAttachReq"
	CallPsAttachApnConfig     = "UtaMsCallPsAttachApnConfigReq"
	CallPsConnect             = "UtaMsCallPsConnectReq"
	CallPsGetNegIpAddr        = "UtaMsCallPsGetNegIpAddrReq"
	CallPsGetNegotiatedDns    = "UtaMsCallPsGetNegotiatedDnsReq"
	RPCPsConnectToDatachannel = "UtaRPCPsConnectToDatachannelReq"
)

// initSequence is the stock subsystem bring-up order.
var initSequence = []string{
	SmsInit,
	CbsInit,
	NetOpen,
	CallCsInit,
	CallPsInitialize,
	SsInit,
	SimOpenReq,
}

// DefaultDatachannelPath is where the PCIe IOSM kernel driver exposes the
// IP traffic endpoint.
const DefaultDatachannelPath = "/sioscc/PCIE/IOSM/IPS/0"

func mustPack(format string, args ...any) []byte {
	out, err := codec.Pack(format, args...)
	if err != nil {
		panic("messages: " + err.Error())
	}
	return out
}

// NetAttachReq asks the firmware to attach to the network with no
// preference on operator or technology.
func NetAttachReq() []byte {
	return mustPack("BLLLLHHLL", 0, 0, 0, 0, 0, 0xffff, 0xffff, 0, 0)
}

// ParseAttachStatus yields the status word of a network attach completion.
func ParseAttachStatus(data []byte) (uint32, error) {
	vals, err := codec.Unpack("nn", data)
	if err != nil {
		return 0, fmt.Errorf("messages: attach status: %w", err)
	}
	return vals[1].(uint32), nil
}

// PsConnectReq activates the default PS bearer.
func PsConnectReq() []byte {
	return mustPack("BLLL", 0, 6, 0, 0)
}

func GetNegIPAddrReq() []byte {
	return mustPack("BLL", 0, 0, 0)
}

// ParseNegIPAddr decodes the three IPv4 addresses of the negotiated bearer.
func ParseNegIPAddr(data []byte) ([3]netip.Addr, error) {
	var out [3]netip.Addr
	vals, err := codec.Unpack("nsnnnn", data)
	if err != nil {
		return out, fmt.Errorf("messages: negotiated ip: %w", err)
	}
	addrs := vals[1].([]byte)
	if len(addrs) < 12 {
		return out, fmt.Errorf("messages: negotiated ip: %d address bytes", len(addrs))
	}
	for i := range out {
		out[i] = netip.AddrFrom4([4]byte(addrs[i*4 : i*4+4]))
	}
	return out, nil
}

func GetNegotiatedDNSReq() []byte {
	return mustPack("BLL", 0, 0, 0)
}

// DNSServers are the resolvers the network offered during attach.
type DNSServers struct {
	V4 []netip.Addr
	V6 []netip.Addr
}

var negotiatedDNSFormat = "n" + strings.Repeat("sn", 16) + "nsnnnn"

// ParseNegotiatedDNS decodes the 16 resolver slots of the DNS response.
// Slot type 1 holds an IPv4 address, type 2 an IPv6 one, anything else is
// empty.
func ParseNegotiatedDNS(data []byte) (DNSServers, error) {
	var out DNSServers
	vals, err := codec.Unpack(negotiatedDNSFormat, data)
	if err != nil {
		return out, fmt.Errorf("messages: negotiated dns: %w", err)
	}

	for i := 0; i < 16; i++ {
		addr := vals[2*i+1].([]byte)
		typ := vals[2*i+2].(uint32)
		switch typ {
		case 1:
			if len(addr) < 4 {
				return out, fmt.Errorf("messages: dns slot %d: %d bytes for an ipv4 address", i, len(addr))
			}
			out.V4 = append(out.V4, netip.AddrFrom4([4]byte(addr[:4])))
		case 2:
			if len(addr) < 16 {
				return out, fmt.Errorf("messages: dns slot %d: %d bytes for an ipv6 address", i, len(addr))
			}
			out.V6 = append(out.V6, netip.AddrFrom16([16]byte(addr[:16])))
		}
	}
	return out, nil
}

// ConnectDatachannelReq names the endpoint the firmware should route the
// bearer traffic to. The path travels NUL-terminated in a 24-byte field.
func ConnectDatachannelReq(path string) ([]byte, error) {
	if path == "" {
		path = DefaultDatachannelPath
	}
	out, err := codec.Pack("s24", append([]byte(path), 0))
	if err != nil {
		return nil, fmt.Errorf("messages: datachannel path %q: %w", path, err)
	}
	return out, nil
}

// apnFieldSize is the access point name buffer inside one profile.
const apnFieldSize = 101

// apnProfileFormat lays out one of the four APN profiles; the name buffer
// capacity follows separately because the last profile declares one byte
// less.
const apnProfileFormat = "s260Ls66s65s250Bs252HLLLLLLLLLLLLLLLLLLLLLs20L"

var attachAPNFormat = "B" +
	apnProfileFormat + "s104" +
	apnProfileFormat + "s104" +
	apnProfileFormat + "s104" +
	apnProfileFormat + "s103" +
	"BL"

// AttachAPNConfigReq builds the profile blob that carries the access point
// name. Profiles three and four hold the name and the activation words, the
// first two stay empty, numeric fields mirror the stock configuration.
func AttachAPNConfigReq(apn string) ([]byte, error) {
	if len(apn) > apnFieldSize {
		return nil, fmt.Errorf("messages: apn %q longer than %d bytes", apn, apnFieldSize)
	}
	apnBuf := make([]byte, apnFieldSize)
	copy(apnBuf, apn)

	args := make([]any, 0, 131)
	args = append(args, 0)
	for profile := 0; profile < 4; profile++ {
		args = append(args, apnProfile(profile >= 2, apnBuf)...)
	}
	args = append(args, 3, 0)
	return codec.Pack(attachAPNFormat, args...)
}

func apnProfile(active bool, apnBuf []byte) []any {
	args := []any{
		make([]byte, 257), 0,
		make([]byte, 65), make([]byte, 65),
		make([]byte, 250), 0,
		make([]byte, 250), 0,
	}

	var words [21]uint32
	apn := make([]byte, apnFieldSize)
	if active {
		words[4] = 1
		words[12] = 1
		words[15] = 0x404
		words[16] = 1
		words[18] = 1
		copy(apn, apnBuf)
	}
	for _, w := range words {
		args = append(args, w)
	}

	args = append(args, make([]byte, 20))
	if active {
		args = append(args, 3)
	} else {
		args = append(args, 0)
	}
	return append(args, apn)
}
