package hcd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embhost/dwc2hcd/internal/simcore"
	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

func TestSubmitNotOpen(t *testing.T) {
	ctl, _, _ := newTestController(t, simcore.DefaultConfig())
	err := ctl.Submit(1, 0x81, make([]byte, 8))
	require.ErrorIs(t, err, ErrEndpointNotOpen)
}

func TestSubmitPacketization(t *testing.T) {
	tests := []struct {
		name    string
		mps     uint16
		length  int
		packets int
	}{
		{"exact multiple", 512, 1024, 2},
		{"trailing short packet", 512, 1000, 2},
		{"single packet", 512, 100, 1},
		{"zero length", 512, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
			core := regs.NewCore(sim)
			openBulk(t, ctl, 1, 0x02, tt.mps)

			require.NoError(t, ctl.Submit(1, 0x02, make([]byte, tt.length)))

			size := core.Channel(0).Size()
			assert.Equal(t, tt.length, size.TransferSize())
			assert.Equal(t, tt.packets, size.PacketCount())
		})
	}
}

func TestSubmitTransferTooLarge(t *testing.T) {
	ctl, _, _ := newTestController(t, simcore.DefaultConfig())
	openBulk(t, ctl, 1, 0x02, 512)

	err := ctl.Submit(1, 0x02, make([]byte, regs.MaxTransferSize+1))
	require.ErrorIs(t, err, ErrTransferTooLarge)
	assert.Equal(t, uint8(stateUnallocated), ctl.slots[0].state, "no channel claimed")
}

func TestSubmitPacketCountOverflow(t *testing.T) {
	ctl, _, _ := newTestController(t, simcore.DefaultConfig())
	openBulk(t, ctl, 1, 0x02, 8)

	// Fits the byte-count field but needs more packets than the packet
	// count field can hold.
	err := ctl.Submit(1, 0x02, make([]byte, 8*(regs.MaxPacketCount+1)))
	require.ErrorIs(t, err, ErrTransferTooLarge)
}

func TestSubmitProgramsChannel(t *testing.T) {
	ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
	core := regs.NewCore(sim)
	openBulk(t, ctl, 3, 0x81, 512)

	require.NoError(t, ctl.Submit(3, 0x81, make([]byte, 512)))

	char := core.Channel(0).Char()
	assert.True(t, char.Enabled())
	assert.Equal(t, uint8(3), char.DeviceAddress())
	assert.Equal(t, uint8(0x81), char.EndpointAddr())
	assert.Equal(t, usb.DirIn, char.Direction())
	assert.Equal(t, usb.TransferBulk, char.Type())
	assert.Equal(t, uint16(512), char.PacketSize())

	assert.NotZero(t, core.ChannelSummaryMask()&1, "channel interrupt summary unmasked")
}

func TestBulkToggleAlternates(t *testing.T) {
	ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
	core := regs.NewCore(sim)
	openBulk(t, ctl, 1, 0x02, 512)

	// Consecutive submissions land on consecutive channels.
	want := []uint8{regs.PIDData0, regs.PIDData1, regs.PIDData0, regs.PIDData1}
	for ch, pid := range want {
		require.NoError(t, ctl.Submit(1, 0x02, []byte{0xaa}))
		assert.Equal(t, pid, core.Channel(ch).Size().PID(), "submission %d", ch)
	}
}

func TestControlTogglePattern(t *testing.T) {
	ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
	core := regs.NewCore(sim)
	openControl(t, ctl, 1, 64)

	setup := usb.SetupPacket{BMRequestType: 0x80, BRequest: 6, WValue: 0x0100, WLength: 18}
	require.NoError(t, ctl.SendSetup(1, setup.Bytes()))
	assert.Equal(t, uint8(regs.PIDSetup), core.Channel(0).Size().PID())
	assert.Equal(t, usb.DirOut, core.Channel(0).Char().Direction())

	// Data and status stages of a control transfer always carry DATA1.
	require.NoError(t, ctl.Submit(1, 0x80, make([]byte, 18)))
	assert.Equal(t, uint8(regs.PIDData1), core.Channel(1).Size().PID())
	assert.Equal(t, usb.DirIn, core.Channel(1).Char().Direction())

	require.NoError(t, ctl.Submit(1, 0x00, nil))
	assert.Equal(t, uint8(regs.PIDData1), core.Channel(2).Size().PID())
	assert.Equal(t, usb.DirOut, core.Channel(2).Char().Direction())
}

func TestSendSetupWritesPacket(t *testing.T) {
	ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
	openControl(t, ctl, 1, 64)

	setup := usb.SetupPacket{BMRequestType: 0x80, BRequest: 6, WValue: 0x0100, WLength: 18}
	require.NoError(t, ctl.SendSetup(1, setup.Bytes()))

	// The FIFO pump runs from the TX-empty interrupt.
	ctl.InterruptHandler()
	want := setup.Bytes()
	assert.Equal(t, want[:], sim.TxBytes(0, len(want)))
}

func TestSubmitChannelExhaustion(t *testing.T) {
	sim := simcore.New(simcore.Config{Channels: 2, FIFODepthWords: 1024, HighSpeedPHY: true})
	ctl := New(sim, staticTree{speed: usb.SpeedHigh}, &recorder{}, Config{})
	require.NoError(t, ctl.Init())
	openBulk(t, ctl, 1, 0x02, 512)

	i := ctl.findEndpoint(1, 2, usb.DirOut)
	require.NoError(t, ctl.Submit(1, 0x02, []byte{1}))
	require.NoError(t, ctl.Submit(1, 0x02, []byte{2}))

	toggleBefore := ctl.endpoints[i].nextToggle
	err := ctl.Submit(1, 0x02, []byte{3})
	require.ErrorIs(t, err, ErrNoFreeChannel)
	assert.Equal(t, toggleBefore, ctl.endpoints[i].nextToggle, "failed submission leaves the toggle alone")
}

func TestSubmitINQueueFull(t *testing.T) {
	ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
	openBulk(t, ctl, 1, 0x81, 512)

	sim.SetTxStatus(false, 1024, 0)
	err := ctl.Submit(1, 0x81, make([]byte, 512))
	require.ErrorIs(t, err, ErrRequestQueueFull)
	assert.Equal(t, uint8(stateUnallocated), ctl.slots[0].state, "no channel claimed on failure")
}

func TestAbortNothingInFlight(t *testing.T) {
	ctl, _, _ := newTestController(t, simcore.DefaultConfig())
	openBulk(t, ctl, 1, 0x81, 512)

	aborted, err := ctl.Abort(1, 0x81)
	require.NoError(t, err)
	assert.False(t, aborted)
}

func TestAbortNotOpen(t *testing.T) {
	ctl, _, _ := newTestController(t, simcore.DefaultConfig())
	_, err := ctl.Abort(1, 0x81)
	require.ErrorIs(t, err, ErrEndpointNotOpen)
}

func TestAbortInFlight(t *testing.T) {
	ctl, sim, rec := newTestController(t, simcore.DefaultConfig())
	core := regs.NewCore(sim)
	openBulk(t, ctl, 1, 0x81, 512)

	require.NoError(t, ctl.Submit(1, 0x81, make([]byte, 512)))

	aborted, err := ctl.Abort(1, 0x81)
	require.NoError(t, err)
	assert.True(t, aborted)
	assert.True(t, core.Channel(0).Char().DisableRequested())
	assert.Equal(t, uint8(stateDisabling), ctl.slots[0].state)

	// The halt completes the cancellation with no completion report.
	sim.RaiseChannelInt(0, regs.ChIntHalted)
	ctl.InterruptHandler()
	assert.Equal(t, uint8(stateUnallocated), ctl.slots[0].state)
	assert.Empty(t, rec.completions)
	assert.Zero(t, core.ChannelSummaryMask()&1)
}

func TestAbortQueueFull(t *testing.T) {
	ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
	openBulk(t, ctl, 1, 0x81, 512)

	require.NoError(t, ctl.Submit(1, 0x81, make([]byte, 512)))
	sim.SetTxStatus(false, 1024, 0)

	_, err := ctl.Abort(1, 0x81)
	require.ErrorIs(t, err, ErrRequestQueueFull)
	assert.Equal(t, uint8(stateActive), ctl.slots[0].state, "transfer still in flight")
}
