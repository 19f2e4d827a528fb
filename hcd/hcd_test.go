package hcd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embhost/dwc2hcd/internal/simcore"
	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

type completion struct {
	dev, ep uint8
	result  usb.Result
}

// recorder captures driver callbacks for assertions.
type recorder struct {
	attached    int
	removed     int
	completions []completion
}

func (r *recorder) DeviceAttach(bool) { r.attached++ }
func (r *recorder) DeviceRemove(bool) { r.removed++ }
func (r *recorder) TransferComplete(dev, ep uint8, result usb.Result, inISR bool) {
	r.completions = append(r.completions, completion{dev: dev, ep: ep, result: result})
}

type staticTree struct{ speed usb.Speed }

func (t staticTree) RoutingInfo(uint8) RoutingInfo { return RoutingInfo{Speed: t.speed} }

func newTestController(t *testing.T, simCfg simcore.Config) (*Controller, *simcore.Core, *recorder) {
	t.Helper()
	sim := simcore.New(simCfg)
	rec := &recorder{}
	ctl := New(sim, staticTree{speed: usb.SpeedHigh}, rec, Config{})
	require.NoError(t, ctl.Init())
	return ctl, sim, rec
}

func openBulk(t *testing.T, ctl *Controller, devAddr, epAddr uint8, mps uint16) {
	t.Helper()
	require.NoError(t, ctl.EndpointOpen(devAddr, usb.EndpointDescriptor{
		BEndpointAddress: epAddr,
		BMAttributes:     uint8(usb.TransferBulk),
		WMaxPacketSize:   mps,
	}))
}

func openControl(t *testing.T, ctl *Controller, devAddr uint8, mps uint16) {
	t.Helper()
	require.NoError(t, ctl.EndpointOpen(devAddr, usb.EndpointDescriptor{
		BEndpointAddress: 0,
		BMAttributes:     uint8(usb.TransferControl),
		WMaxPacketSize:   mps,
	}))
}

func TestInit(t *testing.T) {
	ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
	core := regs.NewCore(sim)

	assert.Equal(t, 8, ctl.channels)
	assert.True(t, ctl.highSpeed)
	assert.False(t, ctl.dma)

	mask := core.IntMask()
	assert.NotZero(t, mask&regs.IntPort)
	assert.NotZero(t, mask&regs.IntChannel)
	assert.NotZero(t, mask&regs.IntRxFIFOLevel, "slave mode needs the rx level interrupt")

	assert.True(t, core.PortStatus()&regs.PortStatus(1<<12) != 0, "port power raised")
	assert.NotZero(t, sim.Reg(0x008)&1, "global interrupt enable set")
}

func TestInitCoreInitHook(t *testing.T) {
	sim := simcore.New(simcore.Config{Channels: 4, FIFODepthWords: 1024, InternalDMA: true, HighSpeedPHY: true})
	var gotHS, gotDMA bool
	ctl := New(sim, staticTree{}, &recorder{}, Config{
		EnableDMA: true,
		CoreInit: func(highSpeed, dma bool) error {
			gotHS, gotDMA = highSpeed, dma
			return nil
		},
	})
	require.NoError(t, ctl.Init())
	assert.True(t, gotHS)
	assert.True(t, gotDMA)
}

func TestInitFIFOTooSmall(t *testing.T) {
	sim := simcore.New(simcore.Config{Channels: 8, FIFODepthWords: 64, HighSpeedPHY: true})
	ctl := New(sim, staticTree{}, &recorder{}, Config{})
	err := ctl.Init()
	require.ErrorIs(t, err, ErrFIFOTooSmall)
	assert.Zero(t, sim.Reg(0x024), "rx fifo size must stay unprogrammed on failure")
}

func TestPortAttachDetach(t *testing.T) {
	ctl, sim, rec := newTestController(t, simcore.DefaultConfig())

	sim.Attach()
	ctl.InterruptHandler()
	assert.Equal(t, 1, rec.attached)
	assert.True(t, ctl.PortConnected())

	// The acknowledge must not re-trigger.
	ctl.InterruptHandler()
	assert.Equal(t, 1, rec.attached)

	sim.Detach()
	ctl.InterruptHandler()
	assert.Equal(t, 1, rec.removed)
	assert.False(t, ctl.PortConnected())
}

func TestPortOverCurrentAcknowledged(t *testing.T) {
	ctl, sim, rec := newTestController(t, simcore.DefaultConfig())
	core := regs.NewCore(sim)

	sim.Attach()
	ctl.InterruptHandler()
	require.Equal(t, 1, rec.attached)

	sim.SetPort(core.PortStatus() | regs.PortAckOverCurrent)
	ctl.InterruptHandler()

	assert.False(t, core.PortStatus().OverCurrentChanged(), "over-current change acknowledged")
	assert.Zero(t, core.IntStatus()&regs.IntPort, "port interrupt deasserted")
	assert.True(t, core.PortStatus().Connected(), "connect status untouched")
	assert.Equal(t, 1, rec.attached, "no spurious attach event")
}

func TestPortEnableFrameInterval(t *testing.T) {
	// The zero GUSBCFG reads as a UTMI+ 8-bit PHY running at 60 MHz.
	tests := []struct {
		name     string
		speed    usb.Speed
		interval uint32
	}{
		{"high speed microframe", usb.SpeedHigh, 125 * 60},
		{"full speed frame", usb.SpeedFull, 1000 * 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl, sim, _ := newTestController(t, simcore.DefaultConfig())
			core := regs.NewCore(sim)

			sim.Attach()
			ctl.InterruptHandler()
			sim.EnablePort(tt.speed)
			ctl.InterruptHandler()

			assert.Equal(t, tt.interval, uint32(core.FrameInterval())&0xffff)
			assert.Equal(t, tt.speed, ctl.PortSpeed())
		})
	}
}
