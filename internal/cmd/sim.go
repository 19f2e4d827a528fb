package cmd

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/embhost/dwc2hcd/hcd"
	"github.com/embhost/dwc2hcd/internal/log"
	"github.com/embhost/dwc2hcd/internal/simcore"
	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

// Sim runs the driver end to end against the simulated core: bring-up,
// device attach, a control GET_DESCRIPTOR exchange and a bulk OUT transfer.
type Sim struct {
	Channels  int    `help:"Host channel count of the simulated core" default:"8"`
	FifoDepth int    `help:"FIFO RAM depth in 32-bit words" default:"1024"`
	HighSpeed bool   `help:"Simulate a high-speed capable core" default:"true"`
	Endpoints int    `help:"Endpoint table capacity" default:"16"`
	TraceFile string `help:"Write a register access trace to this file"`
}

// simEvents logs upper-stack callbacks and records completions.
type simEvents struct {
	logger      *slog.Logger
	completions []string
}

func (e *simEvents) DeviceAttach(inISR bool) {
	e.logger.Info("device attached", "inISR", inISR)
}

func (e *simEvents) DeviceRemove(inISR bool) {
	e.logger.Info("device removed", "inISR", inISR)
}

func (e *simEvents) TransferComplete(devAddr, epAddr uint8, result usb.Result, inISR bool) {
	e.logger.Info("transfer complete", "dev", devAddr, "ep", fmt.Sprintf("%#02x", epAddr), "result", result.String())
	e.completions = append(e.completions, result.String())
}

// fixedTree reports every device as a high-speed root-port device.
type fixedTree struct{}

func (fixedTree) RoutingInfo(devAddr uint8) hcd.RoutingInfo {
	return hcd.RoutingInfo{Speed: usb.SpeedHigh}
}

func (s *Sim) Run(logger *slog.Logger) error {
	sim := simcore.New(simcore.Config{
		Channels:       s.Channels,
		FIFODepthWords: s.FifoDepth,
		HighSpeedPHY:   s.HighSpeed,
	})

	var bus regs.Bus = sim
	if s.TraceFile != "" {
		f, err := os.Create(s.TraceFile)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()
		bus = log.BusTracer(bus, f)
	}

	events := &simEvents{logger: logger}
	ctrl := hcd.New(bus, fixedTree{}, events, hcd.Config{
		EndpointMax: s.Endpoints,
		Logger:      logger,
	})

	if err := ctrl.Init(); err != nil {
		return fmt.Errorf("controller init: %w", err)
	}
	ctrl.InterruptEnable()

	// Attach, reset and enable the port.
	sim.Attach()
	ctrl.InterruptHandler()
	ctrl.PortReset()
	ctrl.PortResetEnd()
	sim.EnablePort(usb.SpeedHigh)
	ctrl.InterruptHandler()
	logger.Info("port up", "speed", ctrl.PortSpeed().String(), "frame", ctrl.FrameNumber())

	// Control endpoint and a GET_DESCRIPTOR(device) exchange.
	const dev = 1
	if err := ctrl.EndpointOpen(dev, usb.EndpointDescriptor{
		BEndpointAddress: 0,
		WMaxPacketSize:   64,
	}); err != nil {
		return err
	}

	setup := usb.SetupPacket{
		BMRequestType: 0x80,
		BRequest:      0x06, // GET_DESCRIPTOR
		WValue:        0x0100,
		WLength:       18,
	}
	if err := ctrl.SendSetup(dev, setup.Bytes()); err != nil {
		return err
	}
	completeActive(sim, ctrl)

	// Data stage: device answers with a descriptor.
	descriptor := make([]byte, 18)
	if err := ctrl.Submit(dev, usb.EndpointAddr(0, usb.DirIn), descriptor); err != nil {
		return err
	}
	for _, ch := range sim.ActiveChannels() {
		sim.DeliverIn(ch, deviceDescriptorBytes())
	}
	ctrl.InterruptHandler()
	logger.Info("descriptor received", "data", hex.EncodeToString(descriptor))

	// Bulk OUT endpoint; the FIFO pump moves the bytes.
	if err := ctrl.EndpointOpen(dev, usb.EndpointDescriptor{
		BEndpointAddress: usb.EndpointAddr(2, usb.DirOut),
		BMAttributes:     uint8(usb.TransferBulk),
		WMaxPacketSize:   512,
	}); err != nil {
		return err
	}
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := ctrl.Submit(dev, usb.EndpointAddr(2, usb.DirOut), payload); err != nil {
		return err
	}
	ctrl.InterruptHandler() // FIFO-empty pump
	completeActive(sim, ctrl)

	logger.Info("simulation done", "completions", len(events.completions))
	return nil
}

// completeActive acknowledges every enabled channel with a
// transfer-complete interrupt, as a well-behaved device would.
func completeActive(sim *simcore.Core, ctrl *hcd.Controller) {
	for _, ch := range sim.ActiveChannels() {
		sim.RaiseChannelInt(ch, regs.ChIntXferComplete)
	}
	ctrl.InterruptHandler()
}

func deviceDescriptorBytes() []byte {
	return []byte{
		18, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 64,
		0x6b, 0x1d, 0x04, 0x01, 0x00, 0x01, 1, 2, 3, 1,
	}
}
