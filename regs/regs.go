// Package regs models the DWC2 core register file. All bit packing for the
// hardware registers lives here, exposed as typed register values with
// accessor/mutator pairs; the rest of the driver never touches raw masks.
package regs

// Bus is 32-bit access to the controller's register window. Implementations
// are the mmio package (real hardware) and the simulated core used in tests.
type Bus interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// Register offsets from the controller base address.
const (
	offGAHBCFG   = 0x008
	offGUSBCFG   = 0x00C
	offGINTSTS   = 0x014
	offGINTMSK   = 0x018
	offGRXSTSP   = 0x020
	offGRXFSIZ   = 0x024
	offGNPTXFSIZ = 0x028
	offGNPTXSTS  = 0x02C
	offGHWCFG2   = 0x048
	offGHWCFG3   = 0x04C
	offGDFIFOCFG = 0x05C
	offHPTXFSIZ  = 0x100
	offHCFG      = 0x400
	offHFIR      = 0x404
	offHFNUM     = 0x408
	offHPTXSTS   = 0x410
	offHAINT     = 0x414
	offHAINTMSK  = 0x418
	offHPRT      = 0x440

	offChannelBase   = 0x500
	channelStride    = 0x20
	offChannelChar   = 0x00
	offChannelSplit  = 0x04
	offChannelInt    = 0x08
	offChannelIntMsk = 0x0C
	offChannelSize   = 0x10
	offChannelDMA    = 0x14

	fifoStride = 0x1000
)

// MaxChannels is the absolute channel count limit of the core.
const MaxChannels = 16

// Core wraps a Bus with typed access to every controller register.
type Core struct {
	bus Bus
}

// NewCore returns a Core over the given register bus.
func NewCore(bus Bus) *Core { return &Core{bus: bus} }

func (c *Core) AHBConfig() AHBConfig       { return AHBConfig(c.bus.Read32(offGAHBCFG)) }
func (c *Core) SetAHBConfig(v AHBConfig)   { c.bus.Write32(offGAHBCFG, uint32(v)) }
func (c *Core) USBConfig() USBConfig       { return USBConfig(c.bus.Read32(offGUSBCFG)) }
func (c *Core) SetUSBConfig(v USBConfig)   { c.bus.Write32(offGUSBCFG, uint32(v)) }
func (c *Core) IntStatus() IntStatus       { return IntStatus(c.bus.Read32(offGINTSTS)) }
func (c *Core) SetIntStatus(v IntStatus)   { c.bus.Write32(offGINTSTS, uint32(v)) }
func (c *Core) IntMask() IntStatus         { return IntStatus(c.bus.Read32(offGINTMSK)) }
func (c *Core) SetIntMask(v IntStatus)     { c.bus.Write32(offGINTMSK, uint32(v)) }
func (c *Core) PopRxStatus() RxStatus      { return RxStatus(c.bus.Read32(offGRXSTSP)) }
func (c *Core) SetRxFIFOSize(words uint16) { c.bus.Write32(offGRXFSIZ, uint32(words)) }
func (c *Core) HWConfig2() HWConfig2       { return HWConfig2(c.bus.Read32(offGHWCFG2)) }
func (c *Core) HWConfig3() HWConfig3       { return HWConfig3(c.bus.Read32(offGHWCFG3)) }
func (c *Core) HostConfig() HostConfig     { return HostConfig(c.bus.Read32(offHCFG)) }
func (c *Core) SetHostConfig(v HostConfig) { c.bus.Write32(offHCFG, uint32(v)) }
func (c *Core) FrameInterval() FrameInterval {
	return FrameInterval(c.bus.Read32(offHFIR))
}
func (c *Core) SetFrameInterval(v FrameInterval) { c.bus.Write32(offHFIR, uint32(v)) }
func (c *Core) FrameNumber() uint16 {
	return uint16(c.bus.Read32(offHFNUM) & 0xffff)
}
func (c *Core) PortStatus() PortStatus     { return PortStatus(c.bus.Read32(offHPRT)) }
func (c *Core) SetPortStatus(v PortStatus) { c.bus.Write32(offHPRT, uint32(v)) }
func (c *Core) ChannelSummary() uint32     { return c.bus.Read32(offHAINT) }
func (c *Core) ChannelSummaryMask() uint32 { return c.bus.Read32(offHAINTMSK) }
func (c *Core) SetChannelSummaryMask(v uint32) {
	c.bus.Write32(offHAINTMSK, v)
}

// TxStatus returns the periodic or non-periodic TX FIFO/request-queue status.
func (c *Core) TxStatus(periodic bool) TxStatus {
	if periodic {
		return TxStatus(c.bus.Read32(offHPTXSTS))
	}
	return TxStatus(c.bus.Read32(offGNPTXSTS))
}

// SetNonPeriodicTxFIFO programs start address and depth of the NPTX FIFO.
func (c *Core) SetNonPeriodicTxFIFO(startWords, sizeWords uint16) {
	c.bus.Write32(offGNPTXFSIZ, uint32(sizeWords)<<16|uint32(startWords))
}

// SetPeriodicTxFIFO programs start address and depth of the PTX FIFO.
func (c *Core) SetPeriodicTxFIFO(startWords, sizeWords uint16) {
	c.bus.Write32(offHPTXFSIZ, uint32(sizeWords)<<16|uint32(startWords))
}

// SetFIFOConfig programs the software FIFO size and endpoint-info base.
func (c *Core) SetFIFOConfig(sizeWords, epInfoBase uint16) {
	c.bus.Write32(offGDFIFOCFG, uint32(epInfoBase)<<16|uint32(sizeWords))
}

// ChannelCount derives the usable channel count from GHWCFG2.
func (c *Core) ChannelCount() int {
	n := c.HWConfig2().HostChannels()
	if n > MaxChannels {
		n = MaxChannels
	}
	return n
}

// Channel returns typed access to one host channel's register block.
func (c *Core) Channel(ch int) Channel {
	return Channel{bus: c.bus, base: offChannelBase + uint32(ch)*channelStride, num: ch}
}

// Channel is the register block of one hardware host channel.
type Channel struct {
	bus  Bus
	base uint32
	num  int
}

func (ch Channel) Char() ChannelChar        { return ChannelChar(ch.bus.Read32(ch.base + offChannelChar)) }
func (ch Channel) SetChar(v ChannelChar)    { ch.bus.Write32(ch.base+offChannelChar, uint32(v)) }
func (ch Channel) Split() ChannelSplit      { return ChannelSplit(ch.bus.Read32(ch.base + offChannelSplit)) }
func (ch Channel) SetSplit(v ChannelSplit)  { ch.bus.Write32(ch.base+offChannelSplit, uint32(v)) }
func (ch Channel) Int() ChannelInt          { return ChannelInt(ch.bus.Read32(ch.base + offChannelInt)) }
func (ch Channel) ClearInt(v ChannelInt)    { ch.bus.Write32(ch.base+offChannelInt, uint32(v)) }
func (ch Channel) IntMask() ChannelInt      { return ChannelInt(ch.bus.Read32(ch.base + offChannelIntMsk)) }
func (ch Channel) SetIntMask(v ChannelInt)  { ch.bus.Write32(ch.base+offChannelIntMsk, uint32(v)) }
func (ch Channel) Size() ChannelSize        { return ChannelSize(ch.bus.Read32(ch.base + offChannelSize)) }
func (ch Channel) SetSize(v ChannelSize)    { ch.bus.Write32(ch.base+offChannelSize, uint32(v)) }
func (ch Channel) SetDMAAddress(addr uint32) {
	ch.bus.Write32(ch.base+offChannelDMA, addr)
}

// Enable sets the channel-enable bit, leaving the rest of HCCHAR intact.
func (ch Channel) Enable() {
	ch.SetChar(ch.Char().WithEnable(true))
}

// RequestDisable sets the channel-disable bit to start a halt.
func (ch Channel) RequestDisable() {
	ch.SetChar(ch.Char().WithDisableRequest(true))
}

// FIFOPort returns the offset of the channel's FIFO data port.
func (ch Channel) FIFOPort() uint32 {
	return uint32(ch.num+1) * fifoStride
}

// WriteFIFO pushes one packet of data into the channel's TX FIFO, padding
// the final word with zeros.
func (ch Channel) WriteFIFO(data []byte) {
	port := ch.FIFOPort()
	for len(data) >= 4 {
		ch.bus.Write32(port, uint32(data[0])|uint32(data[1])<<8|uint32(data[2])<<16|uint32(data[3])<<24)
		data = data[4:]
	}
	if len(data) > 0 {
		var w uint32
		for i, b := range data {
			w |= uint32(b) << (8 * i)
		}
		ch.bus.Write32(port, w)
	}
}

// ReadFIFO pops n bytes from the RX FIFO data port into buf.
func (ch Channel) ReadFIFO(buf []byte, n int) {
	port := ch.FIFOPort()
	for i := 0; i < n; i += 4 {
		w := ch.bus.Read32(port)
		for j := 0; j < 4 && i+j < n; j++ {
			if i+j < len(buf) {
				buf[i+j] = byte(w >> (8 * j))
			}
		}
	}
}
