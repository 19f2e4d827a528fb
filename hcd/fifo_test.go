package hcd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embhost/dwc2hcd/usb"
)

func TestPlanFIFO(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		channels int
		speed    usb.Speed
		dma      bool
	}{
		{"high speed slave", 1024, 8, usb.SpeedHigh, false},
		{"high speed dma", 1024, 8, usb.SpeedHigh, true},
		{"high speed many channels", 1280, 16, usb.SpeedHigh, false},
		{"full speed small ram", 320, 8, usb.SpeedFull, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanFIFO(tt.depth, tt.channels, tt.speed, tt.dma)
			require.NoError(t, err)

			assert.Positive(t, plan.RxSize)
			assert.Positive(t, plan.NPTxSize)

			// Regions tile the RAM bottom-up without overlap.
			assert.Equal(t, plan.RxSize, plan.PTxStart)
			assert.Equal(t, plan.PTxStart+plan.PTxSize, plan.NPTxStart)
			assert.Equal(t, plan.NPTxStart+plan.NPTxSize, plan.EPInfoBase)

			top := tt.depth
			if tt.dma {
				top -= tt.channels
			}
			assert.Equal(t, top, int(plan.EPInfoBase))
		})
	}
}

func TestPlanFIFOSizing(t *testing.T) {
	plan, err := PlanFIFO(1024, 8, usb.SpeedHigh, false)
	require.NoError(t, err)

	// Twice the largest bulk packet for the link speed.
	assert.Equal(t, uint16(2*usb.BulkPacketHS/4), plan.NPTxSize)
	// Twice (largest periodic packet + status), plus one slot per channel.
	assert.Equal(t, uint16(2*(usb.IsoPacketHSMax/4+2)+8), plan.RxSize)
}

func TestPlanFIFOTooSmall(t *testing.T) {
	_, err := PlanFIFO(256, 8, usb.SpeedHigh, false)
	require.ErrorIs(t, err, ErrFIFOTooSmall)

	// DMA metadata can push an otherwise feasible layout over the edge.
	feasible := 2*usb.BulkPacketHS/4 + 2*(usb.IsoPacketHSMax/4+2) + 8
	_, err = PlanFIFO(feasible, 8, usb.SpeedHigh, false)
	assert.NoError(t, err)
	_, err = PlanFIFO(feasible, 8, usb.SpeedHigh, true)
	assert.ErrorIs(t, err, ErrFIFOTooSmall)
}
