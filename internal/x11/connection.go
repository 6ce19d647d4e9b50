// Package x11 connects to the X server and implements the RandR reads and
// writes the display engine needs.
package x11

import (
	"fmt"
	"log/slog"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
)

// Minimum RandR version: 1.3 added primary outputs and cheap resource
// queries.
const (
	randrMajor = 1
	randrMinor = 3
)

const (
	edidAtomName          = "EDID"
	connectorTypeAtomName = "ConnectorType"
	profileAtomName       = "_ICC_PROFILE"
)

// Connection manages the X11 connection and the RandR state iccsync needs
type Connection struct {
	XUtil *xgbutil.XUtil

	roots         []xproto.Window
	edidAtom      xproto.Atom
	connectorAtom xproto.Atom

	// from the latest resource query; output info requests must match it
	configTimestamp xproto.Timestamp
	logger          *slog.Logger
}

// Dial connects to display ("" uses $DISPLAY), checks for RandR 1.3 and
// subscribes every screen to screen, CRTC and output change notifications.
func Dial(display string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("open display %q: %w", display, err)
	}
	c := &Connection{
		XUtil:  xu,
		logger: logger,
	}

	if err := c.setup(); err != nil {
		xu.Conn().Close()
		return nil, err
	}

	// Errors from unchecked requests end up in the event queue.
	xevent.ErrorHandlerSet(xu, func(err xgb.Error) {
		logger.Warn("X protocol error", "error", err)
	})
	return c, nil
}

func (c *Connection) setup() error {
	conn := c.XUtil.Conn()

	if err := randr.Init(conn); err != nil {
		return fmt.Errorf("RandR extension unavailable: %w", err)
	}
	version, err := randr.QueryVersion(conn, randrMajor, randrMinor).Reply()
	if err != nil {
		return fmt.Errorf("query RandR version: %w", err)
	}
	if version.MajorVersion < randrMajor ||
		(version.MajorVersion == randrMajor && version.MinorVersion < randrMinor) {
		return fmt.Errorf("RandR %d.%d is too old, need %d.%d",
			version.MajorVersion, version.MinorVersion, randrMajor, randrMinor)
	}

	if c.edidAtom, err = xprop.Atm(c.XUtil, edidAtomName); err != nil {
		return fmt.Errorf("intern %s: %w", edidAtomName, err)
	}
	if c.connectorAtom, err = xprop.Atm(c.XUtil, connectorTypeAtomName); err != nil {
		return fmt.Errorf("intern %s: %w", connectorTypeAtomName, err)
	}

	const mask = randr.NotifyMaskScreenChange | randr.NotifyMaskCrtcChange | randr.NotifyMaskOutputChange
	for _, screen := range xproto.Setup(conn).Roots {
		root := screen.Root
		if err := randr.SelectInputChecked(conn, root, mask).Check(); err != nil {
			return fmt.Errorf("select RandR input on root %#x: %w", root, err)
		}
		c.roots = append(c.roots, root)
	}
	c.logger.Debug("connected to X server",
		"randr", fmt.Sprintf("%d.%d", version.MajorVersion, version.MinorVersion),
		"screens", len(c.roots))
	return nil
}

// Close cleanly disconnects from the X11 server
func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}
