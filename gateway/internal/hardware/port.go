package hardware

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ErrNoDevice is returned by Discover when no compatible adapter is attached.
var ErrNoDevice = errors.New("no compatible device found")

// Port is the subset of a serial port the gateway uses.
type Port interface {
	io.ReadWriteCloser
}

// USBID is a USB vendor/product pair in upper-case hex.
type USBID struct {
	VID string
	PID string
}

// KnownDevices lists the USB-serial adapters the station controller ships with.
var KnownDevices = []USBID{
	{VID: "2341", PID: "0043"}, // Arduino Uno R3
	{VID: "1A86", PID: "7523"}, // CH340
	{VID: "1A86", PID: "7522"}, // CH340
	{VID: "1A86", PID: "5523"}, // CH341 in serial mode
	{VID: "1A86", PID: "7584"}, // CH340S
}

// Allow test coverage.
var portsLister = enumerator.GetDetailedPortsList

// Discover returns the first USB serial port whose VID/PID is in known.
func Discover(known []USBID) (string, error) {
	ports, err := portsLister()
	if err != nil {
		return "", fmt.Errorf("enumerate ports: %w", err)
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		id := USBID{VID: strings.ToUpper(p.VID), PID: strings.ToUpper(p.PID)}
		for _, k := range known {
			if strings.ToUpper(k.VID) == id.VID && strings.ToUpper(k.PID) == id.PID {
				return p.Name, nil
			}
		}
	}
	return "", ErrNoDevice
}

// OpenPort opens path at baud, 8N1, with the given read timeout. A read that
// times out returns (0, nil).
func OpenPort(path string, baud int, readTimeout time.Duration) (Port, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return p, nil
}
