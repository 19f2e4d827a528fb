package hcd

import (
	"errors"
	"fmt"

	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

// Submit queues one transfer on an opened endpoint. The buffer is owned by
// the caller until the transfer completes via Events.TransferComplete.
//
// Submission never blocks: exhaustion of channels or of the hardware
// request queue fails synchronously and the caller resubmits later. A
// single Submit covers the whole transfer; NAK retries are handled inside
// the interrupt state machine.
func (c *Controller) Submit(devAddr, epAddr uint8, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submit(devAddr, epAddr, buf)
}

func (c *Controller) submit(devAddr, epAddr uint8, buf []byte) error {
	epNum := usb.EndpointNumber(epAddr)
	dir := usb.EndpointDir(epAddr)

	epIdx := c.findEndpoint(devAddr, epNum, dir)
	if epIdx < 0 {
		return fmt.Errorf("submit to %d:%#02x: %w", devAddr, epAddr, ErrEndpointNotOpen)
	}
	ep := &c.endpoints[epIdx]
	periodic := ep.char.Periodic()

	packets := (len(buf) + int(ep.char.PacketSize()) - 1) / int(ep.char.PacketSize())
	if packets == 0 {
		packets = 1 // a zero-length packet still completes as one packet
	}
	// The size register fields would silently truncate anything bigger.
	if len(buf) > regs.MaxTransferSize || packets > regs.MaxPacketCount {
		return fmt.Errorf("submit to %d:%#02x: %d bytes in %d packets: %w",
			devAddr, epAddr, len(buf), packets, ErrTransferTooLarge)
	}

	// An IN token goes out the moment the channel is enabled and needs a
	// request queue entry; check before any state is touched.
	if !c.dma && dir == usb.DirIn && c.core.TxStatus(periodic).QueueSpaceAvailable() == 0 {
		return fmt.Errorf("submit to %d:%#02x: %w", devAddr, epAddr, ErrRequestQueueFull)
	}

	ch := c.allocChannel()
	if ch < 0 {
		return fmt.Errorf("submit to %d:%#02x: %w", devAddr, epAddr, ErrNoFreeChannel)
	}
	slot := &c.slots[ch]
	hwch := c.core.Channel(ch)

	mask := regs.ChIntXferComplete | regs.ChIntStall | regs.ChIntNAK |
		regs.ChIntXactError | regs.ChIntToggleError
	if dir == usb.DirIn {
		mask |= regs.ChIntBabbleError
	} else {
		mask |= regs.ChIntNYET
	}
	hwch.SetSize(regs.ChannelSize(0).
		WithTransferSize(len(buf)).
		WithPacketCount(packets).
		WithPID(ep.nextToggle))

	// Control transfers use DATA1 for every data and status stage; bulk and
	// interrupt endpoints alternate strictly.
	if ep.nextToggle == regs.PIDData0 || epNum == 0 {
		ep.nextToggle = regs.PIDData1
	} else {
		ep.nextToggle = regs.PIDData0
	}

	hwch.SetSplit(ep.split)

	// Schedule on the frame after the current one to avoid racing the
	// current frame's window. Control endpoints switch direction per stage,
	// so the live direction comes from the request, not the record.
	char := ep.char.
		WithOddFrame(c.core.FrameNumber()&1 == 0).
		WithDirection(dir).
		WithEnable(false)
	hwch.SetChar(char)

	slot.buf = buf
	slot.total = len(buf)
	slot.mps = int(ep.char.PacketSize())
	slot.periodic = periodic
	slot.packetsLeft = packets

	if c.dma {
		if c.cfg.DMAAddress == nil {
			c.releaseChannel(ch)
			return errors.New("dma submit: no DMAAddress translator configured")
		}
		hwch.SetDMAAddress(c.cfg.DMAAddress(buf))
		hwch.SetChar(char.WithEnable(true))
	} else if dir == usb.DirIn {
		// Enabling the channel emits the IN token. On NAK the interrupt
		// state machine re-enables it; the caller never resubmits.
		hwch.SetChar(char.WithEnable(true))
	} else {
		hwch.SetChar(char.WithEnable(true))
		if len(buf) > 0 {
			// The FIFO pump moves the bytes from the FIFO-empty interrupt.
			c.core.SetIntMask(c.core.IntMask() | regs.TxFIFOEmptyBit(periodic))
		}
	}

	hwch.SetIntMask(mask)
	c.core.SetChannelSummaryMask(c.core.ChannelSummaryMask() | 1<<uint(ch))

	c.log.Debug("transfer submitted", "dev", devAddr, "ep", epAddr,
		"len", len(buf), "packets", packets, "channel", ch)
	return nil
}

// Abort requests cancellation of the in-flight transfer on an endpoint.
// It returns false when no transfer is bound to the endpoint. Cancellation
// is asynchronous: the channel is released by the halted interrupt, and no
// completion is reported for the aborted transfer. A transfer that finished
// before the abort is processed is not undone.
func (c *Controller) Abort(devAddr, epAddr uint8) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	epNum := usb.EndpointNumber(epAddr)
	dir := usb.EndpointDir(epAddr)
	if c.findEndpoint(devAddr, epNum, dir) < 0 {
		return false, fmt.Errorf("abort on %d:%#02x: %w", devAddr, epAddr, ErrEndpointNotOpen)
	}

	ch := c.findActiveChannel(devAddr, epNum, dir)
	if ch < 0 {
		return false, nil
	}

	// Disabling a channel consumes a request queue entry of its own; with
	// the queue full the abort cannot be issued and the caller backs off.
	if c.core.TxStatus(c.slots[ch].periodic).QueueSpaceAvailable() == 0 {
		return false, fmt.Errorf("abort on %d:%#02x: %w", devAddr, epAddr, ErrRequestQueueFull)
	}

	hwch := c.core.Channel(ch)
	hwch.SetIntMask(hwch.IntMask() | regs.ChIntHalted)
	hwch.RequestDisable()
	c.slots[ch].state = stateDisabling
	return true, nil
}

// SendSetup submits the 8-byte Setup stage of a control transfer. The
// SETUP token overrides the toggle sequence for this packet only.
func (c *Controller) SendSetup(devAddr uint8, setup [usb.SetupPacketLen]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	epIdx := c.findEndpoint(devAddr, 0, usb.DirOut)
	if epIdx < 0 {
		return fmt.Errorf("setup to device %d: %w", devAddr, ErrEndpointNotOpen)
	}
	c.endpoints[epIdx].nextToggle = regs.PIDSetup

	return c.submit(devAddr, usb.EndpointAddr(0, usb.DirOut), setup[:])
}
