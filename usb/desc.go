package usb

import (
	"bytes"
	"encoding/binary"
)

// Descriptor type and length constants from the USB spec.
const (
	EndpointDescType = 0x05
	EndpointDescLen  = 7
	SetupPacketLen   = 8
)

// EndpointDescriptor (7 bytes) carries the protocol configuration the host
// controller needs to open an endpoint.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16 // LE
	BInterval        uint8
}

// Number returns the endpoint number without the direction bit.
func (e EndpointDescriptor) Number() uint8 { return EndpointNumber(e.BEndpointAddress) }

// Direction returns the endpoint direction.
func (e EndpointDescriptor) Direction() Dir { return EndpointDir(e.BEndpointAddress) }

// TransferType returns the transfer type encoded in bmAttributes.
func (e EndpointDescriptor) TransferType() TransferType {
	return TransferType(e.BMAttributes & 0x03)
}

// PacketSize returns the max packet size excluding the high-bandwidth
// transaction-count bits.
func (e EndpointDescriptor) PacketSize() uint16 { return e.WMaxPacketSize & 0x7ff }

func (e EndpointDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(EndpointDescLen)
	b.WriteByte(EndpointDescType)
	b.WriteByte(e.BEndpointAddress)
	b.WriteByte(e.BMAttributes)
	_ = binary.Write(b, binary.LittleEndian, e.WMaxPacketSize)
	b.WriteByte(e.BInterval)
}

// SetupPacket is the 8-byte payload of a control Setup stage.
type SetupPacket struct {
	BMRequestType uint8
	BRequest      uint8
	WValue        uint16 // LE
	WIndex        uint16 // LE
	WLength       uint16 // LE
}

// Bytes returns the wire encoding of the setup packet.
func (s SetupPacket) Bytes() [SetupPacketLen]byte {
	var out [SetupPacketLen]byte
	out[0] = s.BMRequestType
	out[1] = s.BRequest
	binary.LittleEndian.PutUint16(out[2:], s.WValue)
	binary.LittleEndian.PutUint16(out[4:], s.WIndex)
	binary.LittleEndian.PutUint16(out[6:], s.WLength)
	return out
}
