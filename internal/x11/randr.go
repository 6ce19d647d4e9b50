package x11

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xprop"

	"github.com/1broseidon/iccsync/internal/display"
	"github.com/1broseidon/iccsync/internal/gamma"
)

// property reads are capped at 100 32-bit units, enough for an EDID base
// block plus extensions
const propertyLongLength = 100

var _ display.Server = (*Connection)(nil)

// Screens returns the root window of every screen
func (c *Connection) Screens() []uint32 {
	roots := make([]uint32, len(c.roots))
	for i, r := range c.roots {
		roots[i] = uint32(r)
	}
	return roots
}

// Outputs lists the RandR outputs of a screen along with its primary output
func (c *Connection) Outputs(root uint32) ([]uint32, uint32, error) {
	conn := c.XUtil.Conn()
	win := xproto.Window(root)

	resources, err := randr.GetScreenResources(conn, win).Reply()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get screen resources: %w", err)
	}
	c.configTimestamp = resources.ConfigTimestamp

	var primary uint32
	if reply, err := randr.GetOutputPrimary(conn, win).Reply(); err == nil {
		primary = uint32(reply.Output)
	} else {
		c.logger.Debug("failed to get primary output", "root", root, "error", err)
	}

	outputs := make([]uint32, len(resources.Outputs))
	for i, o := range resources.Outputs {
		outputs[i] = uint32(o)
	}
	return outputs, primary, nil
}

// OutputInfo reads an output's name, connection state and CRTC. Outputs in
// an unknown connection state count as connected.
func (c *Connection) OutputInfo(output uint32) (display.OutputInfo, error) {
	info, err := randr.GetOutputInfo(c.XUtil.Conn(), randr.Output(output), c.configTimestamp).Reply()
	if err != nil {
		return display.OutputInfo{}, fmt.Errorf("failed to get output info: %w", err)
	}
	return display.OutputInfo{
		Name:      string(info.Name),
		Connected: info.Connection != randr.ConnectionDisconnected,
		Crtc:      uint32(info.Crtc),
	}, nil
}

// OutputEDID returns the raw EDID property, or nil when it is missing or not
// an 8-bit INTEGER property.
func (c *Connection) OutputEDID(output uint32) ([]byte, error) {
	return c.outputProperty(output, c.edidAtom, xproto.AtomInteger, 8)
}

// ConnectorType returns the name of the output's ConnectorType atom, or ""
func (c *Connection) ConnectorType(output uint32) (string, error) {
	data, err := c.outputProperty(output, c.connectorAtom, xproto.AtomAtom, 32)
	if err != nil || len(data) != 4 {
		return "", err
	}
	name, err := xprop.AtomName(c.XUtil, xproto.Atom(xgb.Get32(data)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve connector type: %w", err)
	}
	return name, nil
}

func (c *Connection) outputProperty(output uint32, prop, typ xproto.Atom, format byte) ([]byte, error) {
	reply, err := randr.GetOutputProperty(c.XUtil.Conn(), randr.Output(output), prop,
		xproto.GetPropertyTypeAny, 0, propertyLongLength, false, false).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get output property: %w", err)
	}
	if reply.Type != typ || reply.Format != format || reply.NumItems == 0 {
		return nil, nil
	}
	n := int(reply.NumItems) * int(format/8)
	if n > len(reply.Data) {
		n = len(reply.Data)
	}
	return reply.Data[:n], nil
}

// GammaSize returns the number of gamma ramp entries of a CRTC
func (c *Connection) GammaSize(crtc uint32) (int, error) {
	reply, err := randr.GetCrtcGammaSize(c.XUtil.Conn(), randr.Crtc(crtc)).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to get gamma size: %w", err)
	}
	return int(reply.Size), nil
}

// SetGamma loads ramp into a CRTC. The ramp is read back afterwards since
// some drivers only latch the new table on the next read.
func (c *Connection) SetGamma(crtc uint32, ramp gamma.Ramp) error {
	conn := c.XUtil.Conn()
	size := ramp.Size()
	if size == 0 || size > 0xffff || len(ramp.Green) != size || len(ramp.Blue) != size {
		return fmt.Errorf("invalid gamma ramp of %d entries", size)
	}

	err := randr.SetCrtcGammaChecked(conn, randr.Crtc(crtc), uint16(size),
		ramp.Red, ramp.Green, ramp.Blue).Check()
	if err != nil {
		return fmt.Errorf("failed to set gamma: %w", err)
	}
	if _, err := randr.GetCrtcGamma(conn, randr.Crtc(crtc)).Reply(); err != nil {
		return fmt.Errorf("failed to read back gamma: %w", err)
	}
	return nil
}

// SetRootProfile replaces _ICC_PROFILE on root with data (CARDINAL, format
// 8), or deletes it when data is nil. BadRequest is not reported: some
// servers refuse the property.
func (c *Connection) SetRootProfile(root uint32, data []byte) error {
	win := xproto.Window(root)

	var err error
	if data == nil {
		var atom xproto.Atom
		if atom, err = xprop.Atm(c.XUtil, profileAtomName); err != nil {
			return fmt.Errorf("intern %s: %w", profileAtomName, err)
		}
		err = xproto.DeletePropertyChecked(c.XUtil.Conn(), win, atom).Check()
	} else {
		err = xprop.ChangeProp(c.XUtil, win, 8, profileAtomName, "CARDINAL", data)
	}

	if err != nil && !isBadRequest(err) {
		return fmt.Errorf("failed to update %s: %w", profileAtomName, err)
	}
	if err != nil {
		c.logger.Debug("server refused profile property", "error", err)
	}
	return nil
}

func isBadRequest(err error) bool {
	var value xproto.RequestError
	if errors.As(err, &value) {
		return true
	}
	var ptr *xproto.RequestError
	return errors.As(err, &ptr)
}
