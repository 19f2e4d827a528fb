package regs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embhost/dwc2hcd/usb"
)

// memBus is a word-addressed scratch bus for exercising register access.
type memBus map[uint32]uint32

func (m memBus) Read32(off uint32) uint32     { return m[off] }
func (m memBus) Write32(off uint32, v uint32) { m[off] = v }

func TestChannelCharRoundTrip(t *testing.T) {
	char := ChannelChar(0).
		WithPacketSize(512).
		WithNumber(3).
		WithDirection(usb.DirIn).
		WithType(usb.TransferBulk).
		WithDeviceAddress(42).
		WithEnable(true)

	assert.Equal(t, uint16(512), char.PacketSize())
	assert.Equal(t, uint8(3), char.Number())
	assert.Equal(t, usb.DirIn, char.Direction())
	assert.Equal(t, usb.TransferBulk, char.Type())
	assert.Equal(t, uint8(42), char.DeviceAddress())
	assert.True(t, char.Enabled())
	assert.Equal(t, uint8(0x83), char.EndpointAddr())
	assert.False(t, char.Periodic())

	assert.Equal(t, usb.DirOut, char.WithDirection(usb.DirOut).Direction())
	assert.True(t, ChannelChar(0).WithType(usb.TransferInterrupt).Periodic())
}

func TestPortStatusSpeed(t *testing.T) {
	tests := []struct {
		name  string
		speed usb.Speed
	}{
		{"high", usb.SpeedHigh},
		{"full", usb.SpeedFull},
		{"low", usb.SpeedLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.speed, MakePortSpeed(tt.speed).Speed())
		})
	}
}

func TestPortStatusMaskChanges(t *testing.T) {
	// A read-modify-write must not acknowledge pending events by accident.
	v := PortStatus(1<<0 | 1<<1 | 1<<3 | 1<<12)
	masked := v.MaskChanges()
	assert.True(t, masked.Connected())
	assert.False(t, masked.ConnectDetected())
	assert.False(t, masked.EnableChanged())

	acked := masked.WithAck(PortAckConnDetect)
	assert.True(t, acked.ConnectDetected())
	assert.False(t, acked.EnableChanged())
}

func TestChannelSizeFields(t *testing.T) {
	v := ChannelSize(0).WithTransferSize(1000).WithPacketCount(2).WithPID(PIDData1)
	assert.Equal(t, 1000, v.TransferSize())
	assert.Equal(t, 2, v.PacketCount())
	assert.Equal(t, uint8(PIDData1), v.PID())
}

func TestWriteFIFOPadsFinalWord(t *testing.T) {
	bus := memBus{}
	ch := NewCore(bus).Channel(1)
	ch.WriteFIFO([]byte{0x11, 0x22, 0x33, 0x44, 0x55})

	// One channel's data port is a single offset; the scratch bus keeps
	// only the last word written there.
	assert.Equal(t, uint32(0x55), bus[ch.FIFOPort()])
}

func TestFIFOProgramming(t *testing.T) {
	bus := memBus{}
	c := NewCore(bus)

	c.SetNonPeriodicTxFIFO(0x300, 0x100)
	assert.Equal(t, uint32(0x100<<16|0x300), bus[offGNPTXFSIZ])

	c.SetPeriodicTxFIFO(0x20C, 0xF4)
	assert.Equal(t, uint32(0xF4<<16|0x20C), bus[offHPTXFSIZ])

	c.SetRxFIFOSize(0x20C)
	assert.Equal(t, uint32(0x20C), bus[offGRXFSIZ])
}

func TestTxStatusFields(t *testing.T) {
	v := MakeTxStatus(256, 4)
	assert.Equal(t, 256, v.FIFOSpaceAvailable())
	assert.Equal(t, 4, v.QueueSpaceAvailable())
}

func TestHWConfigFields(t *testing.T) {
	hw2 := MakeHWConfig2(ArchInternalDMA, HSPHYUTMIPlus, FSPHYDedicated, 8)
	assert.Equal(t, ArchInternalDMA, hw2.Architecture())
	assert.Equal(t, HSPHYUTMIPlus, hw2.HSPHYType())
	assert.Equal(t, FSPHYDedicated, hw2.FSPHYType())
	assert.Equal(t, 8, hw2.HostChannels())
	assert.True(t, hw2.HighSpeedCapable())

	assert.Equal(t, 1024, MakeHWConfig3(1024).FIFODepthWords())
}
