// Package simcore implements a simulated DWC2 register file behind the
// regs.Bus interface. It backs the driver's tests and the dwc2ctl sim
// command: plain registers are word storage, while the handful of registers
// with side effects (RX status pop, FIFO data ports, write-1-to-clear
// status words) follow the hardware behavior.
package simcore

import (
	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

// Register offsets the simulation special-cases.
const (
	regGUSBCFG  = 0x00C
	regGINTSTS  = 0x014
	regGRXSTSP  = 0x020
	regGNPTXSTS = 0x02C
	regGHWCFG2  = 0x048
	regGHWCFG3  = 0x04C
	regHPTXSTS  = 0x410
	regHAINT    = 0x414
	regHAINTMSK = 0x418
	regHPRT     = 0x440

	regChannelBase = 0x500
	channelStride  = 0x20
	chIntOff       = 0x08

	fifoStride = 0x1000

	usbcfgForceHost = 1 << 29

	hprtW1C = 1<<1 | 1<<2 | 1<<3 | 1<<5
)

// Config describes the hardware capabilities the simulated core reports.
type Config struct {
	Channels       int
	FIFODepthWords int
	InternalDMA    bool
	HighSpeedPHY   bool
	DedicatedFSPHY bool
}

// DefaultConfig mirrors a common high-speed core: 8 channels, 1024-word
// FIFO RAM, slave mode only.
func DefaultConfig() Config {
	return Config{Channels: 8, FIFODepthWords: 1024, HighSpeedPHY: true}
}

// Core is a simulated DWC2 register file. It is not safe for concurrent
// use; the driver serializes all register access behind its own lock.
type Core struct {
	words map[uint32]uint32

	hostMode bool
	rxQueue  []regs.RxStatus
	rxData   []uint32
	txData   map[int][]uint32
}

// New builds a simulated core advertising the given capabilities.
func New(cfg Config) *Core {
	c := &Core{
		words:  make(map[uint32]uint32),
		txData: make(map[int][]uint32),
	}

	arch := regs.ArchSlaveOnly
	if cfg.InternalDMA {
		arch = regs.ArchInternalDMA
	}
	hsPHY := regs.HSPHYNone
	if cfg.HighSpeedPHY {
		hsPHY = regs.HSPHYUTMIPlus
	}
	fsPHY := regs.FSPHYNone
	if cfg.DedicatedFSPHY {
		fsPHY = regs.FSPHYDedicated
	}
	c.words[regGHWCFG2] = uint32(regs.MakeHWConfig2(arch, hsPHY, fsPHY, cfg.Channels))
	c.words[regGHWCFG3] = uint32(regs.MakeHWConfig3(cfg.FIFODepthWords))

	// Fresh cores report empty FIFOs and full request queues.
	c.words[regGNPTXSTS] = uint32(regs.MakeTxStatus(cfg.FIFODepthWords, 8))
	c.words[regHPTXSTS] = uint32(regs.MakeTxStatus(cfg.FIFODepthWords, 8))
	return c
}

// Read32 implements regs.Bus.
func (c *Core) Read32(off uint32) uint32 {
	switch {
	case off == regGINTSTS:
		return c.words[off] | c.dynamicInts()
	case off == regGRXSTSP:
		if len(c.rxQueue) == 0 {
			return 0
		}
		w := c.rxQueue[0]
		c.rxQueue = c.rxQueue[1:]
		return uint32(w)
	case c.isFIFOPort(off):
		if len(c.rxData) == 0 {
			return 0
		}
		w := c.rxData[0]
		c.rxData = c.rxData[1:]
		return w
	}
	return c.words[off]
}

// Write32 implements regs.Bus.
func (c *Core) Write32(off uint32, v uint32) {
	switch {
	case off == regGINTSTS:
		// Status bits are write-1-to-clear.
		c.words[off] &^= v
	case off == regGUSBCFG:
		c.words[off] = v
		if v&usbcfgForceHost != 0 {
			c.hostMode = true
		}
	case off == regHPRT:
		old := c.words[off]
		c.words[off] = v&^hprtW1C | old&hprtW1C&^v
	case c.isChannelInt(off):
		c.words[off] &^= v
		if c.words[off] == 0 {
			ch := (off - regChannelBase) / channelStride
			c.words[regHAINT] &^= 1 << ch
		}
	case c.isFIFOPort(off):
		ch := int(off/fifoStride) - 1
		c.txData[ch] = append(c.txData[ch], v)
		// Shrink the advertised TX FIFO space so backpressure is observable.
		// Both classes share one counter pair; tests drive one at a time.
		c.consumeTxWord(regGNPTXSTS)
		c.consumeTxWord(regHPTXSTS)
	default:
		c.words[off] = v
	}
}

func (c *Core) consumeTxWord(off uint32) {
	if avail := c.words[off] & 0xffff; avail > 0 {
		c.words[off] = c.words[off]&^0xffff | (avail - 1)
	}
}

func (c *Core) isFIFOPort(off uint32) bool {
	return off >= fifoStride && off%fifoStride == 0
}

func (c *Core) isChannelInt(off uint32) bool {
	return off >= regChannelBase && off < regChannelBase+16*channelStride &&
		(off-regChannelBase)%channelStride == chIntOff
}

func (c *Core) dynamicInts() uint32 {
	var v uint32
	if c.hostMode {
		v |= uint32(regs.IntCurrentModeHost)
	}
	if len(c.rxQueue) > 0 {
		v |= uint32(regs.IntRxFIFOLevel)
	}
	if c.words[regHAINT]&c.words[regHAINTMSK] != 0 {
		v |= uint32(regs.IntChannel)
	}
	if c.words[regHPRT]&hprtW1C != 0 {
		v |= uint32(regs.IntPort)
	}
	// The simulated TX FIFOs drain instantly, so the empty interrupts are
	// always pending; the driver gates them with GINTMSK.
	v |= uint32(regs.IntNPTxFIFOEmpty | regs.IntPTxFIFOEmpty)
	return v
}

// ActiveChannels lists the channels whose enable bit is currently set.
func (c *Core) ActiveChannels() []int {
	var out []int
	for ch := 0; ch < 16; ch++ {
		if c.words[uint32(regChannelBase+ch*channelStride)]&(1<<31) != 0 {
			out = append(out, ch)
		}
	}
	return out
}

// Reg returns the raw stored word at off, bypassing read side effects.
func (c *Core) Reg(off uint32) uint32 { return c.words[off] }

// SetReg stores a raw word at off, bypassing write side effects.
func (c *Core) SetReg(off uint32, v uint32) { c.words[off] = v }

// RaiseChannelInt latches interrupt bits for a channel and raises its HAINT
// summary bit, as the hardware would.
func (c *Core) RaiseChannelInt(ch int, bits regs.ChannelInt) {
	off := uint32(regChannelBase + ch*channelStride + chIntOff)
	c.words[off] |= uint32(bits)
	c.words[regHAINT] |= 1 << uint(ch)
}

// SetPort stores a raw HPRT value, bypassing write-1-to-clear handling.
func (c *Core) SetPort(v regs.PortStatus) { c.words[regHPRT] = uint32(v) }

// SetTxStatus sets the FIFO/request-queue availability the core reports
// for one periodicity class.
func (c *Core) SetTxStatus(periodic bool, fifoWords, queueEntries int) {
	off := uint32(regGNPTXSTS)
	if periodic {
		off = regHPTXSTS
	}
	c.words[off] = uint32(regs.MakeTxStatus(fifoWords, queueEntries))
}

// PushRxStatus queues a GRXSTSP status word for the driver to pop.
func (c *Core) PushRxStatus(w regs.RxStatus) { c.rxQueue = append(c.rxQueue, w) }

// PushRxData queues IN packet payload on the RX FIFO data port.
func (c *Core) PushRxData(data []byte) {
	for len(data) > 0 {
		var w uint32
		n := len(data)
		if n > 4 {
			n = 4
		}
		for i := 0; i < n; i++ {
			w |= uint32(data[i]) << (8 * i)
		}
		c.rxData = append(c.rxData, w)
		data = data[n:]
	}
}

// DeliverIn queues a complete IN data packet: the status word, its payload
// and the transfer-complete marker, followed by the transfer-complete
// channel interrupt.
func (c *Core) DeliverIn(ch int, data []byte) {
	c.PushRxStatus(regs.MakeRxStatus(ch, len(data), regs.RxStatusDataIn))
	c.PushRxData(data)
	c.PushRxStatus(regs.MakeRxStatus(ch, 0, regs.RxStatusXferDone))
	c.RaiseChannelInt(ch, regs.ChIntXferComplete)
}

// TxBytes decodes the words a channel wrote to its FIFO data port back into
// bytes, truncated to n.
func (c *Core) TxBytes(ch, n int) []byte {
	out := make([]byte, 0, n)
	for _, w := range c.txData[ch] {
		for j := 0; j < 4 && len(out) < n; j++ {
			out = append(out, byte(w>>(8*j)))
		}
	}
	return out
}

// ClearTx discards captured TX FIFO data for a channel.
func (c *Core) ClearTx(ch int) { delete(c.txData, ch) }

// Attach simulates a device connect: connect status plus detect event.
// The negotiated speed becomes visible on EnablePort after reset.
func (c *Core) Attach() {
	c.words[regHPRT] |= 1<<0 | 1<<1
}

// EnablePort simulates a completed port reset at the given speed.
func (c *Core) EnablePort(speed usb.Speed) {
	c.words[regHPRT] |= 1<<2 | 1<<3 | uint32(regs.MakePortSpeed(speed))
}

// Detach simulates a device disconnect.
func (c *Core) Detach() {
	c.words[regHPRT] &^= 1 << 0
	c.words[regHPRT] |= 1 << 1
}
