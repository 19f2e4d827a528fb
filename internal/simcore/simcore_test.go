package simcore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embhost/dwc2hcd/regs"
)

func TestIntStatusWriteOneToClear(t *testing.T) {
	c := New(DefaultConfig())
	c.SetReg(regGINTSTS, uint32(regs.IntDisconnect|regs.IntOTG))

	c.Write32(regGINTSTS, uint32(regs.IntOTG))
	assert.Zero(t, c.Read32(regGINTSTS)&uint32(regs.IntOTG))
	assert.NotZero(t, c.Read32(regGINTSTS)&uint32(regs.IntDisconnect))
}

func TestHostModeSwitch(t *testing.T) {
	c := New(DefaultConfig())
	assert.Zero(t, c.Read32(regGINTSTS)&uint32(regs.IntCurrentModeHost))

	c.Write32(regGUSBCFG, usbcfgForceHost)
	assert.NotZero(t, c.Read32(regGINTSTS)&uint32(regs.IntCurrentModeHost))
}

func TestPortWriteOneToClear(t *testing.T) {
	c := New(DefaultConfig())
	c.Attach()
	assert.NotZero(t, c.Read32(regGINTSTS)&uint32(regs.IntPort))

	// Acknowledging the detect bit keeps the connect status bit.
	hprt := c.Read32(regHPRT)
	c.Write32(regHPRT, hprt&^hprtW1C|1<<1)
	assert.NotZero(t, c.Read32(regHPRT)&1, "connect status survives")
	assert.Zero(t, c.Read32(regHPRT)&(1<<1), "detect event acknowledged")
	assert.Zero(t, c.Read32(regGINTSTS)&uint32(regs.IntPort))
}

func TestChannelIntSummary(t *testing.T) {
	c := New(DefaultConfig())
	c.Write32(regHAINTMSK, 1<<2)
	c.RaiseChannelInt(2, regs.ChIntXferComplete)

	assert.NotZero(t, c.Read32(regHAINT)&(1<<2))
	assert.NotZero(t, c.Read32(regGINTSTS)&uint32(regs.IntChannel))

	// Clearing the channel interrupt drops the summary bit with it.
	c.Write32(regChannelBase+2*channelStride+chIntOff, uint32(regs.ChIntXferComplete))
	assert.Zero(t, c.Read32(regHAINT)&(1<<2))
	assert.Zero(t, c.Read32(regGINTSTS)&uint32(regs.IntChannel))
}

func TestDeliverInRoundTrip(t *testing.T) {
	c := New(DefaultConfig())
	data := []byte{1, 2, 3, 4, 5}
	c.DeliverIn(0, data)

	st := regs.RxStatus(c.Read32(regGRXSTSP))
	assert.Equal(t, 0, st.ChannelNumber())
	assert.Equal(t, len(data), st.ByteCount())
	assert.Equal(t, regs.RxStatusDataIn, st.PacketStatus())

	got := make([]byte, len(data))
	regs.NewCore(c).Channel(0).ReadFIFO(got, len(data))
	assert.Equal(t, data, got)

	st = regs.RxStatus(c.Read32(regGRXSTSP))
	assert.Equal(t, regs.RxStatusXferDone, st.PacketStatus())
}

func TestTxFIFOConsumesSpace(t *testing.T) {
	c := New(DefaultConfig())
	c.SetTxStatus(false, 4, 8)

	ch := regs.NewCore(c).Channel(0)
	ch.WriteFIFO([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, 2, regs.TxStatus(c.Read32(regGNPTXSTS)).FIFOSpaceAvailable())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, c.TxBytes(0, 8))
}
