package cmd

import (
	"fmt"
	"log/slog"

	"github.com/embhost/dwc2hcd/hcd"
	"github.com/embhost/dwc2hcd/usb"
)

// Fifo computes and prints the FIFO partition plan for a hardware profile
// without touching any hardware.
type Fifo struct {
	Depth    int    `help:"Total FIFO RAM depth in 32-bit words" default:"1024"`
	Channels int    `help:"Host channel count" default:"8"`
	Speed    string `help:"Link speed class" enum:"full,high" default:"high"`
	DMA      bool   `help:"Reserve endpoint-info words for internal DMA"`
}

func (f *Fifo) Run(logger *slog.Logger) error {
	speed := usb.SpeedFull
	if f.Speed == "high" {
		speed = usb.SpeedHigh
	}

	plan, err := hcd.PlanFIFO(f.Depth, f.Channels, speed, f.DMA)
	if err != nil {
		return err
	}

	fmt.Printf("FIFO plan for depth=%d words, %d channels, %s, dma=%v\n",
		f.Depth, f.Channels, speed, f.DMA)
	fmt.Printf("  ep-info base   %5d\n", plan.EPInfoBase)
	fmt.Printf("  rx fifo        [%5d, %5d)  %d words\n", 0, plan.RxSize, plan.RxSize)
	fmt.Printf("  periodic tx    [%5d, %5d)  %d words\n", plan.PTxStart, plan.PTxStart+plan.PTxSize, plan.PTxSize)
	fmt.Printf("  non-period tx  [%5d, %5d)  %d words\n", plan.NPTxStart, plan.NPTxStart+plan.NPTxSize, plan.NPTxSize)

	logger.Debug("fifo plan computed", "rx", plan.RxSize, "nptx", plan.NPTxSize, "ptx", plan.PTxSize)
	return nil
}
