package hcd

import (
	"fmt"

	"github.com/embhost/dwc2hcd/regs"
	"github.com/embhost/dwc2hcd/usb"
)

// endpoint is one opened logical endpoint. The persistent channel
// characteristics register doubles as the record's configuration template;
// its enable bit marks the record in use.
type endpoint struct {
	char  regs.ChannelChar
	split regs.ChannelSplit

	// nextToggle is the HCTSIZ PID the next transfer will use.
	nextToggle uint8
}

func (e *endpoint) enabled() bool { return e.char.Enabled() }

// EndpointOpen registers a logical endpoint so transfers can be submitted
// to it. Device speed and hub routing come from the device tree. Fails when
// the endpoint is already open or the table is full.
func (c *Controller) EndpointOpen(devAddr uint8, desc usb.EndpointDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.findEndpoint(devAddr, desc.Number(), desc.Direction()) >= 0 {
		return fmt.Errorf("open endpoint %d of device %d: %w", desc.Number(), devAddr, ErrEndpointAlreadyOpen)
	}

	routing := c.devtree.RoutingInfo(devAddr)

	for i := range c.endpoints {
		ep := &c.endpoints[i]
		if ep.enabled() {
			continue
		}
		ep.char = regs.ChannelChar(0).
			WithPacketSize(desc.PacketSize()).
			WithNumber(desc.Number()).
			WithDirection(desc.Direction()).
			WithLowSpeed(routing.Speed == usb.SpeedLow).
			WithType(desc.TransferType()).
			WithMultiCount(0).
			WithDeviceAddress(devAddr).
			WithEnable(true)

		// Split transactions are not driven yet; only the routing fields
		// are recorded.
		ep.split = regs.ChannelSplit(0).
			WithHubPort(routing.HubPort).
			WithHubAddress(routing.HubAddr)

		ep.nextToggle = regs.PIDData0

		c.log.Debug("endpoint opened", "dev", devAddr,
			"ep", desc.Number(), "dir", desc.Direction().String(),
			"type", desc.TransferType().String(), "mps", desc.PacketSize())
		return nil
	}
	return fmt.Errorf("open endpoint %d of device %d: %w", desc.Number(), devAddr, ErrNoFreeEndpoint)
}

// findEndpoint returns the index of the opened endpoint record, or -1.
// Endpoint 0 is bidirectional and matched by number alone.
func (c *Controller) findEndpoint(devAddr, epNum uint8, dir usb.Dir) int {
	for i := range c.endpoints {
		ch := c.endpoints[i].char
		if c.endpoints[i].enabled() && ch.DeviceAddress() == devAddr && ch.Number() == epNum &&
			(epNum == 0 || ch.Direction() == dir) {
			return i
		}
	}
	return -1
}

// DeviceClose clears every endpoint record opened for a device address.
// In-flight channels are untouched; the caller aborts those first.
func (c *Controller) DeviceClose(devAddr uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.endpoints {
		if c.endpoints[i].enabled() && c.endpoints[i].char.DeviceAddress() == devAddr {
			c.endpoints[i] = endpoint{}
		}
	}
}

// ClearStall resynchronizes an endpoint after a stall has been cleared on
// the device: the next transfer restarts the toggle sequence at DATA0. The
// ClearFeature(ENDPOINT_HALT) request itself is the upper stack's job.
func (c *Controller) ClearStall(devAddr, epAddr uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.findEndpoint(devAddr, usb.EndpointNumber(epAddr), usb.EndpointDir(epAddr))
	if i < 0 {
		return fmt.Errorf("clear stall on %d:%#02x: %w", devAddr, epAddr, ErrEndpointNotOpen)
	}
	c.endpoints[i].nextToggle = regs.PIDData0
	return nil
}
