package usb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointAddr(t *testing.T) {
	assert.Equal(t, uint8(0x81), EndpointAddr(1, DirIn))
	assert.Equal(t, uint8(0x02), EndpointAddr(2, DirOut))

	assert.Equal(t, uint8(1), EndpointNumber(0x81))
	assert.Equal(t, DirIn, EndpointDir(0x81))
	assert.Equal(t, DirOut, EndpointDir(0x02))
}

func TestTransferTypePeriodic(t *testing.T) {
	assert.False(t, TransferControl.Periodic())
	assert.False(t, TransferBulk.Periodic())
	assert.True(t, TransferInterrupt.Periodic())
	assert.True(t, TransferIsochronous.Periodic())
}

func TestEndpointDescriptor(t *testing.T) {
	d := EndpointDescriptor{
		BEndpointAddress: 0x81,
		BMAttributes:     uint8(TransferInterrupt),
		WMaxPacketSize:   0x1808, // 8 bytes, 2 additional transactions
		BInterval:        10,
	}
	assert.Equal(t, uint8(1), d.Number())
	assert.Equal(t, DirIn, d.Direction())
	assert.Equal(t, TransferInterrupt, d.TransferType())
	assert.Equal(t, uint16(8), d.PacketSize(), "high-bandwidth bits excluded")

	var b bytes.Buffer
	d.Write(&b)
	assert.Equal(t, []byte{7, 5, 0x81, 3, 0x08, 0x18, 10}, b.Bytes())
}

func TestSetupPacketBytes(t *testing.T) {
	s := SetupPacket{
		BMRequestType: 0x80,
		BRequest:      6, // GET_DESCRIPTOR
		WValue:        0x0100,
		WIndex:        0,
		WLength:       18,
	}
	assert.Equal(t, [8]byte{0x80, 6, 0x00, 0x01, 0, 0, 18, 0}, s.Bytes())
}
