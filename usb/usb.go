// Package usb contains the USB protocol vocabulary shared by the host
// controller driver: speeds, transfer types, endpoint addressing and
// transfer results.
package usb

import "fmt"

// USB link speeds as defined in the USB 2.0 specification.
const (
	SpeedLow  Speed = 0 // 1.5 Mbps
	SpeedFull Speed = 1 // 12 Mbps
	SpeedHigh Speed = 2 // 480 Mbps
)

// SpeedInvalid is reported when the port speed field holds a reserved value.
const SpeedInvalid Speed = 0xff

// Speed represents a USB link speed class.
type Speed uint8

func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "low-speed"
	case SpeedFull:
		return "full-speed"
	case SpeedHigh:
		return "high-speed"
	default:
		return fmt.Sprintf("invalid-speed(%d)", uint8(s))
	}
}

// Transfer types, matching the bmAttributes transfer-type field encoding.
const (
	TransferControl     TransferType = 0
	TransferIsochronous TransferType = 1
	TransferBulk        TransferType = 2
	TransferInterrupt   TransferType = 3
)

// TransferType classifies an endpoint's transfer scheduling class.
type TransferType uint8

// Periodic reports whether the type is scheduled in the periodic frame
// window (interrupt/isochronous) rather than the non-periodic one.
func (t TransferType) Periodic() bool {
	return t == TransferInterrupt || t == TransferIsochronous
}

func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "control"
	case TransferIsochronous:
		return "isochronous"
	case TransferBulk:
		return "bulk"
	case TransferInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("invalid-transfer-type(%d)", uint8(t))
	}
}

// Endpoint directions, host point of view.
const (
	DirOut Dir = 0
	DirIn  Dir = 1
)

// Dir is an endpoint direction.
type Dir uint8

func (d Dir) String() string {
	if d == DirIn {
		return "in"
	}
	return "out"
}

// Largest bulk packet per speed, used for FIFO sizing.
const (
	BulkPacketFS = 64
	BulkPacketHS = 512
)

// Largest periodic (isochronous) packet a high-speed endpoint may carry.
const IsoPacketHSMax = 1024

// EndpointAddr packs an endpoint number and direction into the wire
// bEndpointAddress form (bit 7 set for IN).
func EndpointAddr(num uint8, dir Dir) uint8 {
	return num | uint8(dir)<<7
}

// EndpointNumber extracts the endpoint number from a bEndpointAddress.
func EndpointNumber(addr uint8) uint8 { return addr & 0x0f }

// EndpointDir extracts the direction from a bEndpointAddress.
func EndpointDir(addr uint8) Dir { return Dir(addr >> 7) }

// Transfer results reported to the upper host stack.
const (
	ResultSuccess Result = 0
	ResultFailed  Result = 1
	ResultStalled Result = 2
)

// Result is the terminal outcome of one submitted transfer.
type Result uint8

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	case ResultStalled:
		return "stalled"
	default:
		return fmt.Sprintf("invalid-result(%d)", uint8(r))
	}
}
