package hcd

import (
	"fmt"

	"github.com/embhost/dwc2hcd/usb"
)

/* Data FIFO RAM layout (units: 32-bit words)

   ----------------- depth
  |  EP info (DMA) |     one word per channel, internal DMA only
  |----------------|-- EPInfoBase
  | Non-periodic   |
  |   TX FIFO      |
  |----------------|-- NPTxStart
  |   Periodic     |
  |   TX FIFO      |
  |----------------|-- PTxStart
  |     FREE       |
  |----------------|-- RxSize
  |   RX FIFO      |
   ----------------- 0

  TX regions are allocated from the top down so the RX FIFO can grow into
  the free space without relocating the TX boundaries.

  Sizing, per the programming guide:
  - RX: largest periodic packet in words + 2 status entries, doubled, plus
    one NAK/NYET buffer slot per host channel.
  - NPTX: twice the largest bulk packet for the link speed.
  - PTX: whatever remains.
*/

// FIFOPlan is the computed partition of the shared FIFO RAM.
type FIFOPlan struct {
	EPInfoBase uint16 // top of usable data RAM; DMA metadata sits above
	RxSize     uint16 // RX FIFO occupies [0, RxSize)
	NPTxStart  uint16
	NPTxSize   uint16
	PTxStart   uint16
	PTxSize    uint16
}

// PlanFIFO computes the FIFO partition for a core with the given total RAM
// depth (words), host channel count and link speed class. It fails when the
// RAM cannot service the configuration; nothing is programmed on failure.
func PlanFIFO(depthWords, channels int, speed usb.Speed, dma bool) (FIFOPlan, error) {
	top := depthWords
	if dma {
		// Buffer DMA keeps one metadata word per channel at the top.
		top -= channels
	}

	bulkLargest := usb.BulkPacketFS / 4
	periodicLargest := 256 / 4 // FS cores rarely have more than 1KB total
	if speed == usb.SpeedHigh {
		bulkLargest = usb.BulkPacketHS / 4
		periodicLargest = usb.IsoPacketHSMax / 4
	}

	nptx := 2 * bulkLargest
	rx := 2*(periodicLargest+2) + channels
	if top < nptx+rx {
		return FIFOPlan{}, fmt.Errorf("%w: depth %d words, need %d", ErrFIFOTooSmall, depthWords, nptx+rx)
	}
	ptx := top - nptx - rx

	return FIFOPlan{
		EPInfoBase: uint16(top),
		RxSize:     uint16(rx),
		NPTxStart:  uint16(top - nptx),
		NPTxSize:   uint16(nptx),
		PTxStart:   uint16(top - nptx - ptx),
		PTxSize:    uint16(ptx),
	}, nil
}

// initFIFO computes and programs the FIFO partition once during bring-up,
// before the port is powered.
func (c *Controller) initFIFO() error {
	depth := c.core.HWConfig3().FIFODepthWords()
	speed := usb.SpeedFull
	if c.highSpeed {
		speed = usb.SpeedHigh
	}
	plan, err := PlanFIFO(depth, c.channels, speed, c.dma)
	if err != nil {
		return err
	}

	c.core.SetFIFOConfig(plan.EPInfoBase, plan.EPInfoBase)
	c.core.SetRxFIFOSize(plan.RxSize)
	c.core.SetNonPeriodicTxFIFO(plan.NPTxStart, plan.NPTxSize)
	c.core.SetPeriodicTxFIFO(plan.PTxStart, plan.PTxSize)

	c.log.Debug("fifo partition programmed",
		"depth", depth, "rx", plan.RxSize, "nptx", plan.NPTxSize, "ptx", plan.PTxSize)
	return nil
}
