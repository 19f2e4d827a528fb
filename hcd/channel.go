package hcd

import "github.com/embhost/dwc2hcd/usb"

// Consecutive transaction errors tolerated before a transfer is abandoned.
const maxErrorCount = 3

// Channel slot states.
const (
	stateUnallocated = iota
	stateActive
	stateDisabling // halt requested (abort, stall or toggle-error drain)
)

// channelSlot holds the transfer-scoped bookkeeping for one hardware
// channel. Fields other than state are valid only while the slot is bound
// to a transfer.
type channelSlot struct {
	state    uint8
	errCount uint8

	buf   []byte
	sent  int // cursor into buf
	total int

	// packetsLeft counts OUT packets not yet written to the TX FIFO;
	// lastXact is the size of the most recent one, kept for the NAK rewind.
	packetsLeft int
	lastXact    int

	mps      int
	periodic bool
}

// allocChannel claims the first unallocated slot, zeroing its
// transfer-scoped fields. Returns -1 when every channel is busy; the caller
// must fail the submission rather than wait.
func (c *Controller) allocChannel() int {
	for ch := 0; ch < c.channels; ch++ {
		if c.slots[ch].state == stateUnallocated {
			c.slots[ch] = channelSlot{state: stateActive}
			return ch
		}
	}
	return -1
}

// releaseChannel returns a slot to the pool. The caller must drop every
// reference into the slot's transfer fields first.
func (c *Controller) releaseChannel(ch int) {
	c.slots[ch] = channelSlot{}
}

// findActiveChannel scans the live hardware configuration of bound slots.
// The registry is deliberately not consulted: a channel's programmed
// direction can differ from the endpoint record mid control transfer.
// Endpoint 0 matches either direction.
func (c *Controller) findActiveChannel(devAddr, epNum uint8, dir usb.Dir) int {
	for ch := 0; ch < c.channels; ch++ {
		if c.slots[ch].state == stateUnallocated {
			continue
		}
		char := c.core.Channel(ch).Char()
		if char.DeviceAddress() == devAddr && char.Number() == epNum &&
			(epNum == 0 || char.Direction() == dir) {
			return ch
		}
	}
	return -1
}
