package hcd

import (
	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

// resultNone marks "transfer not done yet" inside the state machine.
const resultNone usb.Result = 0xff

/* Interrupt hierarchy

             HCINTn        HPRT
               |            |
            HAINT.CHn       |
               |            |
  GINTSTS:   HCInt        PrtInt     NPTxFEmp  PTxFEmp  RxFLvl
*/

// InterruptHandler is the top-level dispatch entry point, invoked by the
// platform interrupt plumbing on every controller interrupt. Dispatches for
// one controller are serialized by the controller lock.
func (c *Controller) InterruptHandler() {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.core.IntStatus() & c.core.IntMask()

	if status&regs.IntConnIDChange != 0 {
		c.core.SetIntStatus(regs.IntConnIDChange)
	}

	if status&regs.IntPort != 0 {
		// Sources are acknowledged in the port status register itself.
		c.handlePortInterrupt()
	}

	// The RX FIFO drains before channel dispatch: a completed IN transfer
	// raises its channel interrupt with the final packet still in the FIFO,
	// and completion must not release the channel out from under its data.
	if status&regs.IntRxFIFOLevel != 0 {
		// Mask while draining; one interrupt can cover several packets.
		c.core.SetIntMask(c.core.IntMask() &^ regs.IntRxFIFOLevel)
		for c.core.IntStatus()&regs.IntRxFIFOLevel != 0 {
			c.pumpRx()
		}
		c.core.SetIntMask(c.core.IntMask() | regs.IntRxFIFOLevel)
	}

	if status&regs.IntNPTxFIFOEmpty != 0 {
		if !c.pumpTx(false) {
			c.core.SetIntMask(c.core.IntMask() &^ regs.IntNPTxFIFOEmpty)
		}
	}
	if status&regs.IntPTxFIFOEmpty != 0 {
		if !c.pumpTx(true) {
			c.core.SetIntMask(c.core.IntMask() &^ regs.IntPTxFIFOEmpty)
		}
	}

	if status&regs.IntChannel != 0 {
		c.handleChannelInterrupts()
	}
}

// handleChannelInterrupts runs the per-transfer state machine for every
// channel flagged in the interrupt summary.
func (c *Controller) handleChannelInterrupts() {
	summary := c.core.ChannelSummary()

	for ch := 0; ch < c.channels; ch++ {
		if summary&(1<<uint(ch)) == 0 {
			continue
		}
		hwch := c.core.Channel(ch)
		slot := &c.slots[ch]

		hcint := hwch.Int() & hwch.IntMask()
		char := hwch.Char()
		result := resultNone
		halted := hcint&regs.ChIntHalted != 0

		switch {
		case hcint&regs.ChIntXferComplete != 0:
			result = usb.ResultSuccess
			hwch.SetIntMask(hwch.IntMask() &^ regs.ChIntACK)
			c.releaseChannel(ch)

		case hcint&regs.ChIntStall != 0:
			// The channel must drain to halted before it can be reused.
			result = usb.ResultStalled
			hwch.SetIntMask(hwch.IntMask() | regs.ChIntHalted)
			hwch.RequestDisable()
			slot.state = stateDisabling

		case hcint&(regs.ChIntNAK|regs.ChIntXactError|regs.ChIntNYET) != 0:
			c.handleRetry(ch, hcint, char)

		case hcint&regs.ChIntToggleError != 0:
			// Toggle desync is terminal; resynchronization is left to the
			// upper stack via ClearStall.
			c.log.Error("data toggle error", "channel", ch,
				"dev", char.DeviceAddress(), "ep", char.EndpointAddr())
			result = usb.ResultFailed
			hwch.SetIntMask(hwch.IntMask() | regs.ChIntHalted)
			hwch.RequestDisable()
			slot.state = stateDisabling

		case halted:
			if slot.state == stateDisabling {
				// Abort or post-report drain: release silently.
				c.releaseChannel(ch)
			} else {
				// Error budget exhausted, or a halt this driver does not
				// re-initialize from (HS PING restart). Fail rather than
				// leave the channel wedged.
				result = usb.ResultFailed
				c.releaseChannel(ch)
			}

		case hcint&regs.ChIntACK != 0:
			slot.errCount = 0
			hwch.SetIntMask(hwch.IntMask() &^ regs.ChIntACK)
		}

		if result != resultNone || halted {
			// A channel still draining to halted keeps its summary
			// interrupt unmasked so the halt can release it.
			if slot.state != stateDisabling {
				c.core.SetChannelSummaryMask(c.core.ChannelSummaryMask() &^ (1 << uint(ch)))
			}
			if result != resultNone {
				c.events.TransferComplete(char.DeviceAddress(), char.EndpointAddr(), result, true)
			}
		}

		hwch.ClearInt(hcint)
	}
}

// handleRetry applies the NAK/NYET/transaction-error retry policy for one
// active channel.
func (c *Controller) handleRetry(ch int, hcint regs.ChannelInt, char regs.ChannelChar) {
	hwch := c.core.Channel(ch)
	slot := &c.slots[ch]

	if hcint&regs.ChIntXactError != 0 {
		slot.errCount++
		// Watch for an ACK to detect recovery.
		hwch.SetIntMask(hwch.IntMask() | regs.ChIntACK)
	} else {
		slot.errCount = 0
	}

	if slot.errCount >= maxErrorCount {
		// Out of retries: drain the channel; the halted handler reports
		// the failure.
		hwch.SetIntMask(hwch.IntMask() | regs.ChIntHalted)
		hwch.RequestDisable()
		return
	}

	if char.Direction() == usb.DirOut {
		// The failed packet was already consumed from the buffer; rewind
		// the cursor so the pump resends it.
		slot.sent -= slot.lastXact
		slot.packetsLeft++
		slot.lastXact = 0
		hwch.Enable()
		c.core.SetIntMask(c.core.IntMask() | regs.TxFIFOEmptyBit(slot.periodic))
	} else {
		// An IN retry, whether after a NAK or a transaction error, means
		// issuing the token again.
		if c.core.TxStatus(slot.periodic).QueueSpaceAvailable() == 0 {
			// Cannot reissue the IN token; fail fast instead of spinning.
			c.releaseChannel(ch)
			c.core.SetChannelSummaryMask(c.core.ChannelSummaryMask() &^ (1 << uint(ch)))
			c.events.TransferComplete(char.DeviceAddress(), char.EndpointAddr(), usb.ResultFailed, true)
			return
		}
		hwch.Enable()
	}
}

// pumpRx pops one RX FIFO status word and moves the data it announces.
func (c *Controller) pumpRx() {
	st := c.core.PopRxStatus()
	ch := st.ChannelNumber()
	hwch := c.core.Channel(ch)
	slot := &c.slots[ch]

	switch st.PacketStatus() {
	case regs.RxStatusDataIn:
		n := st.ByteCount()
		hwch.ReadFIFO(slot.buf[slot.sent:], n)
		slot.sent += n
		if n < slot.mps {
			// Short packet: the transfer completes early.
			slot.total = slot.sent
		}

	case regs.RxStatusXferDone:
		// The transfer-complete channel interrupt that follows is the
		// authoritative completion signal.

	case regs.RxStatusToggleError:
		char := hwch.Char()
		c.log.Error("data toggle error on rx", "channel", ch,
			"dev", char.DeviceAddress(), "ep", char.EndpointAddr())
		hwch.SetIntMask(hwch.IntMask() | regs.ChIntHalted)
		hwch.RequestDisable()
		slot.state = stateDisabling
		c.events.TransferComplete(char.DeviceAddress(), char.EndpointAddr(), usb.ResultFailed, true)

	case regs.RxStatusHalted:
		// Informational; the disable completes through the channel-halted
		// interrupt path.
	}
}

// pumpTx writes pending OUT packets for every active channel of one
// periodicity class. Returns true while packets remain so the caller keeps
// the FIFO-empty interrupt unmasked.
func (c *Controller) pumpTx(periodic bool) bool {
	for ch := 0; ch < c.channels; ch++ {
		slot := &c.slots[ch]
		if slot.state != stateActive || slot.periodic != periodic {
			continue
		}
		hwch := c.core.Channel(ch)
		if hwch.Char().Direction() != usb.DirOut {
			continue
		}

		for slot.packetsLeft > 0 {
			remaining := slot.total - slot.sent
			xact := remaining
			if xact > slot.mps {
				xact = slot.mps
			}

			// A packet is never split across two pump runs: it needs its
			// FIFO space and a request queue entry up front. The packet's
			// last word posts the request queue entry.
			st := c.core.TxStatus(periodic)
			if st.FIFOSpaceAvailable() < (xact+3)/4 || st.QueueSpaceAvailable() == 0 {
				return true
			}

			hwch.WriteFIFO(slot.buf[slot.sent : slot.sent+xact])
			slot.sent += xact
			slot.lastXact = xact
			slot.packetsLeft--
		}
	}
	return false
}

// handlePortInterrupt services connect, enable-change and over-current
// events on the root port.
func (c *Controller) handlePortInterrupt() {
	hprt := c.core.PortStatus()
	ack := hprt.MaskChanges()

	if hprt.ConnectDetected() {
		ack = ack.WithAck(regs.PortAckConnDetect)
		// The same event covers both edges; the live status bit decides.
		if hprt.Connected() {
			c.log.Debug("device attached")
			c.events.DeviceAttach(true)
		} else {
			c.log.Debug("device removed")
			c.events.DeviceRemove(true)
		}
	}

	if hprt.EnableChanged() {
		ack = ack.WithAck(regs.PortAckEnableChange)
		if hprt.Enabled() {
			c.portEnabled(hprt.Speed())
		}
	}

	if hprt.OverCurrentChanged() {
		// Acknowledged so the interrupt deasserts; port power policy after
		// an over-current trip belongs to the upper stack.
		ack = ack.WithAck(regs.PortAckOverCurrent)
		c.log.Warn("port over-current change", "connected", hprt.Connected())
	}

	c.core.SetPortStatus(ack)
}

// portEnabled reprograms the FS/LS PHY clock and the frame interval for the
// link speed negotiated by the port reset.
func (c *Controller) portEnabled(speed usb.Speed) {
	usbcfg := c.core.USBConfig()
	clockMHz := usbcfg.PHYClockMHz()

	hcfg := c.core.HostConfig()
	if usbcfg.DedicatedFSPHY() {
		hcfg = hcfg.WithPHYClockSelect(regs.PHYClockSel48MHz)
	} else {
		hcfg = hcfg.WithPHYClockSelect(regs.PHYClockSel30_60MHz)
	}
	c.core.SetHostConfig(hcfg)

	// Frame interval in PHY clocks: one microframe at high speed, one full
	// frame otherwise.
	interval := 1000 * clockMHz
	if speed == usb.SpeedHigh {
		interval = 125 * clockMHz
	}
	c.core.SetFrameInterval(c.core.FrameInterval().WithInterval(interval))

	c.log.Info("port enabled", "speed", speed.String(), "phyClockMHz", clockMHz)
}
