package regs

import "github.com/embhost/dwc2hcd/usb"

func getBits(v uint32, shift, width uint) uint32 {
	return (v >> shift) & (1<<width - 1)
}

func setBits(v uint32, shift, width uint, val uint32) uint32 {
	mask := uint32(1<<width-1) << shift
	return v&^mask | val<<shift&mask
}

// AHBConfig is the GAHBCFG register.
type AHBConfig uint32

const (
	ahbcfgGlobalInt     = 1 << 0
	ahbcfgTxEmptyLevel  = 1 << 7
	ahbcfgPTxEmptyLevel = 1 << 8
)

func (v AHBConfig) WithGlobalInterrupt(on bool) AHBConfig {
	return v.with(ahbcfgGlobalInt, on)
}

// WithTxEmptyLevel selects when the non-periodic TX-FIFO-empty interrupt
// fires: true for completely empty, false for half empty.
func (v AHBConfig) WithTxEmptyLevel(completelyEmpty bool) AHBConfig {
	return v.with(ahbcfgTxEmptyLevel, completelyEmpty)
}

func (v AHBConfig) with(bit uint32, on bool) AHBConfig {
	if on {
		return v | AHBConfig(bit)
	}
	return v &^ AHBConfig(bit)
}

// USBConfig is the GUSBCFG register.
type USBConfig uint32

const (
	usbcfgPHYIf16     = 1 << 3
	usbcfgULPISelect  = 1 << 4
	usbcfgPHYSelectFS = 1 << 6
	usbcfgForceHost   = 1 << 29
	usbcfgForceDevice = 1 << 30
)

// DedicatedFSPHY reports whether the core uses the dedicated full-speed PHY.
func (v USBConfig) DedicatedFSPHY() bool { return v&usbcfgPHYSelectFS != 0 }

// ULPI reports whether the shared HS PHY uses the ULPI interface.
func (v USBConfig) ULPI() bool { return v&usbcfgULPISelect != 0 }

// PHYWide16 reports whether the UTMI+ interface runs 16-bit wide.
func (v USBConfig) PHYWide16() bool { return v&usbcfgPHYIf16 != 0 }

// WithForceHostMode requests host role, clearing any force-device request.
func (v USBConfig) WithForceHostMode() USBConfig {
	return v&^usbcfgForceDevice | usbcfgForceHost
}

// PHYClockMHz returns the FS/LS PHY clock rate implied by the PHY selection.
func (v USBConfig) PHYClockMHz() uint32 {
	if v.DedicatedFSPHY() {
		return 48
	}
	if v.ULPI() {
		return 60 // ULPI is 8-bit at 60 MHz
	}
	if v.PHYWide16() {
		return 30 // UTMI+ 16-bit
	}
	return 60 // UTMI+ 8-bit
}

// IntStatus is the GINTSTS/GINTMSK register layout.
type IntStatus uint32

const (
	IntCurrentModeHost IntStatus = 1 << 0
	IntOTG             IntStatus = 1 << 2
	IntRxFIFOLevel     IntStatus = 1 << 4
	IntNPTxFIFOEmpty   IntStatus = 1 << 5
	IntPort            IntStatus = 1 << 24
	IntChannel         IntStatus = 1 << 25
	IntPTxFIFOEmpty    IntStatus = 1 << 26
	IntConnIDChange    IntStatus = 1 << 28
	IntDisconnect      IntStatus = 1 << 29
)

// TxFIFOEmptyBit selects the FIFO-empty summary bit for a periodicity class.
func TxFIFOEmptyBit(periodic bool) IntStatus {
	if periodic {
		return IntPTxFIFOEmpty
	}
	return IntNPTxFIFOEmpty
}

// RxStatus is one popped GRXSTSP status word (host mode layout).
type RxStatus uint32

// RX packet status codes.
const (
	RxStatusDataIn      = 2 // IN data packet received
	RxStatusXferDone    = 3 // IN transfer completed
	RxStatusToggleError = 5
	RxStatusHalted      = 7
)

func (v RxStatus) ChannelNumber() int { return int(getBits(uint32(v), 0, 4)) }
func (v RxStatus) ByteCount() int     { return int(getBits(uint32(v), 4, 11)) }
func (v RxStatus) PacketStatus() int  { return int(getBits(uint32(v), 17, 4)) }

// MakeRxStatus builds a status word; the simulated core feeds these to the
// driver the way hardware would.
func MakeRxStatus(channel, byteCount, pktStatus int) RxStatus {
	var v uint32
	v = setBits(v, 0, 4, uint32(channel))
	v = setBits(v, 4, 11, uint32(byteCount))
	v = setBits(v, 17, 4, uint32(pktStatus))
	return RxStatus(v)
}

// TxStatus is the GNPTXSTS/HPTXSTS register layout. The queue-available
// field is at the same position in both.
type TxStatus uint32

// FIFOSpaceAvailable returns the free FIFO space in 32-bit words.
func (v TxStatus) FIFOSpaceAvailable() int { return int(getBits(uint32(v), 0, 16)) }

// QueueSpaceAvailable returns the free request queue entries.
func (v TxStatus) QueueSpaceAvailable() int { return int(getBits(uint32(v), 16, 8)) }

// MakeTxStatus builds a TX status word for the simulated core.
func MakeTxStatus(fifoWords, queueEntries int) TxStatus {
	var v uint32
	v = setBits(v, 0, 16, uint32(fifoWords))
	v = setBits(v, 16, 8, uint32(queueEntries))
	return TxStatus(v)
}

// HWConfig2 is the GHWCFG2 capability register.
type HWConfig2 uint32

// Architecture values in GHWCFG2.
const (
	ArchSlaveOnly   = 0
	ArchExternalDMA = 1
	ArchInternalDMA = 2
)

// HS PHY types.
const (
	HSPHYNone     = 0
	HSPHYUTMIPlus = 1
	HSPHYULPI     = 2
	HSPHYBoth     = 3
)

// FS PHY types.
const (
	FSPHYNone      = 0
	FSPHYDedicated = 1
)

func (v HWConfig2) Architecture() int { return int(getBits(uint32(v), 3, 2)) }
func (v HWConfig2) HSPHYType() int    { return int(getBits(uint32(v), 6, 2)) }
func (v HWConfig2) FSPHYType() int    { return int(getBits(uint32(v), 8, 2)) }

// HostChannels returns the number of host channels (GHWCFG2 stores n-1).
func (v HWConfig2) HostChannels() int { return int(getBits(uint32(v), 14, 4)) + 1 }

// HighSpeedCapable reports whether the core has any high-speed PHY.
func (v HWConfig2) HighSpeedCapable() bool { return v.HSPHYType() != HSPHYNone }

// MakeHWConfig2 builds a capability word for the simulated core.
func MakeHWConfig2(arch, hsPHY, fsPHY, channels int) HWConfig2 {
	var v uint32
	v = setBits(v, 3, 2, uint32(arch))
	v = setBits(v, 6, 2, uint32(hsPHY))
	v = setBits(v, 8, 2, uint32(fsPHY))
	v = setBits(v, 14, 4, uint32(channels-1))
	return HWConfig2(v)
}

// HWConfig3 is the GHWCFG3 capability register.
type HWConfig3 uint32

// FIFODepthWords returns the total data FIFO RAM size in 32-bit words.
func (v HWConfig3) FIFODepthWords() int { return int(getBits(uint32(v), 16, 16)) }

// MakeHWConfig3 builds a capability word for the simulated core.
func MakeHWConfig3(fifoWords int) HWConfig3 {
	return HWConfig3(setBits(0, 16, 16, uint32(fifoWords)))
}

// HostConfig is the HCFG register.
type HostConfig uint32

// FS/LS PHY clock selections.
const (
	PHYClockSel30_60MHz = 0
	PHYClockSel48MHz    = 1
)

const hcfgFSLSOnly = 1 << 2

func (v HostConfig) WithPHYClockSelect(sel uint32) HostConfig {
	return HostConfig(setBits(uint32(v), 0, 2, sel))
}

func (v HostConfig) WithFSLSOnly(on bool) HostConfig {
	if on {
		return v | hcfgFSLSOnly
	}
	return v &^ hcfgFSLSOnly
}

// FrameInterval is the HFIR register.
type FrameInterval uint32

// WithInterval sets the frame interval field in PHY clock cycles.
func (v FrameInterval) WithInterval(cycles uint32) FrameInterval {
	return FrameInterval(setBits(uint32(v), 0, 16, cycles))
}

// PortStatus is the HPRT register.
type PortStatus uint32

const (
	portConnStatus        = 1 << 0
	portConnDetect        = 1 << 1
	portEnabled           = 1 << 2
	portEnableChange      = 1 << 3
	portOverCurrentChange = 1 << 5
	portReset             = 1 << 8
	portPower             = 1 << 12
)

// portW1C covers the write-1-to-clear bits that must be masked off before
// a read-modify-write so they are not cleared by accident.
const portW1C = portConnDetect | portEnabled | portEnableChange | portOverCurrentChange

func (v PortStatus) Connected() bool          { return v&portConnStatus != 0 }
func (v PortStatus) ConnectDetected() bool    { return v&portConnDetect != 0 }
func (v PortStatus) Enabled() bool            { return v&portEnabled != 0 }
func (v PortStatus) EnableChanged() bool      { return v&portEnableChange != 0 }
func (v PortStatus) OverCurrentChanged() bool { return v&portOverCurrentChange != 0 }

// Speed decodes the port speed field set after a successful reset.
func (v PortStatus) Speed() usb.Speed {
	switch getBits(uint32(v), 17, 2) {
	case 0:
		return usb.SpeedHigh
	case 1:
		return usb.SpeedFull
	case 2:
		return usb.SpeedLow
	default:
		return usb.SpeedInvalid
	}
}

// MaskChanges clears the write-1-to-clear bits so a later write does not
// acknowledge events unintentionally.
func (v PortStatus) MaskChanges() PortStatus { return v &^ portW1C }

// WithAck sets a write-1-to-clear acknowledge bit.
func (v PortStatus) WithAck(bit PortStatus) PortStatus { return v | bit }

// Acknowledge bit values for WithAck.
const (
	PortAckConnDetect   PortStatus = portConnDetect
	PortAckEnableChange PortStatus = portEnableChange
	PortAckOverCurrent  PortStatus = portOverCurrentChange
	PortAckAll          PortStatus = portW1C
)

func (v PortStatus) WithPower(on bool) PortStatus {
	if on {
		return v | portPower
	}
	return v &^ portPower
}

func (v PortStatus) WithReset(on bool) PortStatus {
	if on {
		return v | portReset
	}
	return v &^ portReset
}

// MakePortSpeed builds the speed field for the simulated core.
func MakePortSpeed(speed usb.Speed) PortStatus {
	var f uint32
	switch speed {
	case usb.SpeedHigh:
		f = 0
	case usb.SpeedFull:
		f = 1
	case usb.SpeedLow:
		f = 2
	}
	return PortStatus(setBits(0, 17, 2, f))
}

// ChannelChar is the HCCHAR register.
type ChannelChar uint32

const (
	charDirIn    = 1 << 15
	charLowSpeed = 1 << 17
	charOddFrame = 1 << 29
	charDisable  = 1 << 30
	charEnable   = 1 << 31
)

func (v ChannelChar) PacketSize() uint16 { return uint16(getBits(uint32(v), 0, 11)) }
func (v ChannelChar) Number() uint8      { return uint8(getBits(uint32(v), 11, 4)) }
func (v ChannelChar) DeviceAddress() uint8 {
	return uint8(getBits(uint32(v), 22, 7))
}
func (v ChannelChar) Type() usb.TransferType {
	return usb.TransferType(getBits(uint32(v), 18, 2))
}

func (v ChannelChar) Direction() usb.Dir {
	if v&charDirIn != 0 {
		return usb.DirIn
	}
	return usb.DirOut
}

func (v ChannelChar) Enabled() bool          { return v&charEnable != 0 }
func (v ChannelChar) DisableRequested() bool { return v&charDisable != 0 }

// EndpointAddr reconstructs the wire endpoint address from the live channel
// configuration.
func (v ChannelChar) EndpointAddr() uint8 {
	return usb.EndpointAddr(v.Number(), v.Direction())
}

// Periodic reports whether the channel runs in the periodic schedule.
func (v ChannelChar) Periodic() bool { return v.Type().Periodic() }

func (v ChannelChar) WithPacketSize(mps uint16) ChannelChar {
	return ChannelChar(setBits(uint32(v), 0, 11, uint32(mps)))
}

func (v ChannelChar) WithNumber(num uint8) ChannelChar {
	return ChannelChar(setBits(uint32(v), 11, 4, uint32(num)))
}

func (v ChannelChar) WithDirection(dir usb.Dir) ChannelChar {
	if dir == usb.DirIn {
		return v | charDirIn
	}
	return v &^ charDirIn
}

func (v ChannelChar) WithLowSpeed(on bool) ChannelChar {
	if on {
		return v | charLowSpeed
	}
	return v &^ charLowSpeed
}

func (v ChannelChar) WithType(t usb.TransferType) ChannelChar {
	return ChannelChar(setBits(uint32(v), 18, 2, uint32(t)))
}

func (v ChannelChar) WithMultiCount(n uint8) ChannelChar {
	return ChannelChar(setBits(uint32(v), 20, 2, uint32(n)))
}

func (v ChannelChar) WithDeviceAddress(addr uint8) ChannelChar {
	return ChannelChar(setBits(uint32(v), 22, 7, uint32(addr)))
}

func (v ChannelChar) WithOddFrame(on bool) ChannelChar {
	if on {
		return v | charOddFrame
	}
	return v &^ charOddFrame
}

func (v ChannelChar) WithEnable(on bool) ChannelChar {
	if on {
		return v | charEnable
	}
	return v &^ charEnable
}

func (v ChannelChar) WithDisableRequest(on bool) ChannelChar {
	if on {
		return v | charDisable
	}
	return v &^ charDisable
}

// ChannelSplit is the HCSPLT register. Split transactions are not driven
// yet; the fields are programmed verbatim from the endpoint record.
type ChannelSplit uint32

func (v ChannelSplit) WithHubPort(port uint8) ChannelSplit {
	return ChannelSplit(setBits(uint32(v), 0, 7, uint32(port)))
}

func (v ChannelSplit) WithHubAddress(addr uint8) ChannelSplit {
	return ChannelSplit(setBits(uint32(v), 7, 7, uint32(addr)))
}

// ChannelInt is the HCINT/HCINTMSK register layout.
type ChannelInt uint32

const (
	ChIntXferComplete ChannelInt = 1 << 0
	ChIntHalted       ChannelInt = 1 << 1
	ChIntStall        ChannelInt = 1 << 3
	ChIntNAK          ChannelInt = 1 << 4
	ChIntACK          ChannelInt = 1 << 5
	ChIntNYET         ChannelInt = 1 << 6
	ChIntXactError    ChannelInt = 1 << 7
	ChIntBabbleError  ChannelInt = 1 << 8
	ChIntToggleError  ChannelInt = 1 << 10
)

// ChannelSize is the HCTSIZ register.
type ChannelSize uint32

// Field capacities of HCTSIZ; a transfer beyond these cannot be programmed.
const (
	MaxTransferSize = 1<<19 - 1
	MaxPacketCount  = 1<<10 - 1
)

// Packet IDs in the HCTSIZ PID field.
const (
	PIDData0 = 0
	PIDData2 = 1
	PIDData1 = 2
	PIDSetup = 3 // MDATA for non-control transfers
)

func (v ChannelSize) TransferSize() int { return int(getBits(uint32(v), 0, 19)) }
func (v ChannelSize) PacketCount() int  { return int(getBits(uint32(v), 19, 10)) }
func (v ChannelSize) PID() uint8        { return uint8(getBits(uint32(v), 29, 2)) }

func (v ChannelSize) WithTransferSize(n int) ChannelSize {
	return ChannelSize(setBits(uint32(v), 0, 19, uint32(n)))
}

func (v ChannelSize) WithPacketCount(n int) ChannelSize {
	return ChannelSize(setBits(uint32(v), 19, 10, uint32(n)))
}

func (v ChannelSize) WithPID(pid uint8) ChannelSize {
	return ChannelSize(setBits(uint32(v), 29, 2, uint32(pid)))
}
