// Package hcd drives the host controller of a DWC2-family USB core. It
// multiplexes the core's fixed set of hardware channels across the logical
// endpoints opened by the upper host stack, runs the per-transfer interrupt
// state machine, and manages the on-chip FIFO RAM partitioning.
//
// The driver owns no policy above the transfer layer: enumeration,
// descriptor parsing and timeouts belong to the upper stack, which consumes
// completions through the Events interface.
package hcd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

// Scheduler backpressure and configuration errors.
var (
	ErrNoFreeChannel       = errors.New("no free host channel")
	ErrNoFreeEndpoint      = errors.New("endpoint table full")
	ErrEndpointNotOpen     = errors.New("endpoint not open")
	ErrEndpointAlreadyOpen = errors.New("endpoint already open")
	ErrRequestQueueFull    = errors.New("request queue full")
	ErrFIFOTooSmall        = errors.New("fifo ram cannot fit configuration")
	ErrTransferTooLarge    = errors.New("transfer exceeds channel size limits")
)

// DefaultEndpointMax is the endpoint table capacity when Config leaves it
// zero. It may exceed the hardware channel count.
const DefaultEndpointMax = 16

// Events is the upper host stack's callback surface. All methods are
// invoked with the controller lock held; inISR reports whether the call
// originates from interrupt dispatch.
type Events interface {
	DeviceAttach(inISR bool)
	DeviceRemove(inISR bool)
	TransferComplete(devAddr, epAddr uint8, result usb.Result, inISR bool)
}

// RoutingInfo is the device-tree lookup result for one device address.
type RoutingInfo struct {
	Speed   usb.Speed
	HubAddr uint8
	HubPort uint8
}

// DeviceTree resolves a device address to its link speed and hub routing.
// Implemented by the upper stack's topology bookkeeping.
type DeviceTree interface {
	RoutingInfo(devAddr uint8) RoutingInfo
}

// Config tunes a Controller. The zero value is usable.
type Config struct {
	// EndpointMax caps the endpoint table; defaults to DefaultEndpointMax.
	EndpointMax int

	// EnableDMA requests the internal-DMA data path when the core supports
	// it. The slave (programmed I/O) path is used otherwise.
	EnableDMA bool

	// CoreInit is the one-time core/PHY bring-up primitive, invoked once
	// during Init before host configuration.
	CoreInit func(highSpeed, dma bool) error

	// IntControl gates the controller's interrupt line at the platform
	// interrupt controller.
	IntControl func(enable bool)

	// DMAAddress translates a transfer buffer to the bus address programmed
	// into the channel's DMA register. Required when EnableDMA takes effect.
	DMAAddress func(buf []byte) uint32

	Logger *slog.Logger
}

// Controller is one DWC2 host controller instance.
//
// A single mutex serializes the task-context API and InterruptHandler; no
// operation blocks while holding it. Backpressure (no channel, queue full,
// FIFO full) is always a synchronous error, never a wait.
type Controller struct {
	mu sync.Mutex

	core    *regs.Core
	events  Events
	devtree DeviceTree
	cfg     Config
	log     *slog.Logger

	channels  int
	highSpeed bool
	dma       bool

	slots     [regs.MaxChannels]channelSlot
	endpoints []endpoint
}

// New builds a Controller over the given register bus. Init must be called
// before any other method.
func New(bus regs.Bus, devtree DeviceTree, events Events, cfg Config) *Controller {
	if cfg.EndpointMax <= 0 {
		cfg.EndpointMax = DefaultEndpointMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		core:      regs.NewCore(bus),
		events:    events,
		devtree:   devtree,
		cfg:       cfg,
		log:       logger,
		endpoints: make([]endpoint, cfg.EndpointMax),
	}
}

// Spins allowed for the host-mode switch before Init gives up. Hardware
// completes the switch within a few PHY clocks.
const modeSwitchSpins = 10000

// Init brings the controller up in host mode: core/PHY init, FS/LS clock
// select, FIFO partitioning, port power and interrupt unmasking. Must
// complete before the port is used.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.endpoints {
		c.endpoints[i] = endpoint{}
	}
	for i := range c.slots {
		c.slots[i] = channelSlot{}
	}

	hw2 := c.core.HWConfig2()
	c.channels = c.core.ChannelCount()
	c.highSpeed = hw2.HighSpeedCapable()
	c.dma = c.cfg.EnableDMA && hw2.Architecture() == regs.ArchInternalDMA

	if c.cfg.CoreInit != nil {
		if err := c.cfg.CoreInit(c.highSpeed, c.dma); err != nil {
			return fmt.Errorf("core init: %w", err)
		}
	}

	// FS/LS PHY clock select. A high-speed core leaves the selection to the
	// port-enable handler once the negotiated speed is known.
	hcfg := c.core.HostConfig().WithFSLSOnly(false)
	if !c.highSpeed {
		if hw2.HSPHYType() == regs.HSPHYULPI && hw2.FSPHYType() == regs.FSPHYDedicated {
			hcfg = hcfg.WithPHYClockSelect(regs.PHYClockSel48MHz)
		} else {
			hcfg = hcfg.WithPHYClockSelect(regs.PHYClockSel30_60MHz)
		}
	}
	c.core.SetHostConfig(hcfg)

	// Force host mode and wait for the mode switch.
	c.core.SetUSBConfig(c.core.USBConfig().WithForceHostMode())
	switched := false
	for i := 0; i < modeSwitchSpins; i++ {
		if c.core.IntStatus()&regs.IntCurrentModeHost != 0 {
			switched = true
			break
		}
	}
	if !switched {
		return errors.New("timed out waiting for host mode switch")
	}

	if err := c.initFIFO(); err != nil {
		return err
	}

	c.core.SetPortStatus(regs.PortStatus(0).WithAck(regs.PortAckAll))
	c.core.SetPortStatus(regs.PortStatus(0).WithPower(true))

	mask := c.core.IntMask() | regs.IntOTG | regs.IntConnIDChange | regs.IntPort | regs.IntChannel
	if !c.dma {
		mask |= regs.IntRxFIFOLevel
	}
	c.core.SetIntMask(mask)

	// NPTX FIFO holds at least two packets; fire the empty interrupt at the
	// half-empty level.
	ahb := c.core.AHBConfig().WithTxEmptyLevel(false).WithGlobalInterrupt(true)
	c.core.SetAHBConfig(ahb)

	c.log.Info("host controller initialized",
		"channels", c.channels, "highSpeed", c.highSpeed, "dma", c.dma)
	return nil
}

// InterruptEnable unmasks the controller's interrupt line at the platform
// interrupt controller.
func (c *Controller) InterruptEnable() {
	if c.cfg.IntControl != nil {
		c.cfg.IntControl(true)
	}
}

// InterruptDisable masks the controller's interrupt line.
func (c *Controller) InterruptDisable() {
	if c.cfg.IntControl != nil {
		c.cfg.IntControl(false)
	}
}

// FrameNumber returns the current 1ms frame number.
func (c *Controller) FrameNumber() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.core.FrameNumber()
}

// PortConnected reports the live connection status of the root port.
func (c *Controller) PortConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.core.PortStatus().Connected()
}

// PortReset starts a bus reset. It returns immediately; the caller ends the
// sequence with PortResetEnd after the reset hold time.
func (c *Controller) PortReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.core.SetPortStatus(c.core.PortStatus().MaskChanges().WithReset(true))
}

// PortResetEnd completes a bus reset started by PortReset.
func (c *Controller) PortResetEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.core.SetPortStatus(c.core.PortStatus().MaskChanges().WithReset(false))
}

// PortSpeed returns the link speed negotiated by the last port reset.
func (c *Controller) PortSpeed() usb.Speed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.core.PortStatus().Speed()
}
