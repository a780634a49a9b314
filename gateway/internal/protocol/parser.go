package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hydrolab/stationlink/gateway/internal/status"
)

// Sigils.
const (
	SigilDiagnostic = '>'
	SigilValue      = '$'
)

// ReferenceID is the reserved identifier of the reference pressure line.
const ReferenceID = "$RF"

var (
	ErrEmpty        = errors.New("empty frame")
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownSigil = errors.New("unknown sigil")
	ErrFieldCount   = errors.New("wrong field count")
	ErrBadNumber    = errors.New("non-numeric field")
	ErrUnknownSlot  = errors.New("unknown slot")
)

// Parse classifies a single frame (without its line terminator).
func Parse(frame string) (Message, error) {
	line := strings.TrimSpace(frame)
	if line == "" {
		return nil, ErrEmpty
	}
	for i := 0; i < len(line); i++ {
		if c := line[i]; (c < 0x20 && c != '\t') || c > 0x7e {
			return nil, fmt.Errorf("byte 0x%02x at %d: %w", c, i, ErrMalformed)
		}
	}

	if strings.Contains(line, "Water") {
		fields := strings.Fields(line)
		return Banner{Version: fields[len(fields)-1]}, nil
	}

	switch line[0] {
	case SigilDiagnostic:
		return parseDiagnostic(line), nil
	case SigilValue:
		return parseValue(line)
	default:
		return nil, fmt.Errorf("%q: %w", line[0], ErrUnknownSigil)
	}
}

func parseDiagnostic(line string) Message {
	switch {
	case strings.Contains(line, "FAIL"):
		return Fault{Text: line}
	case strings.Contains(line, "REPORT") && strings.Contains(line, "FINISHED"):
		return ReportFinished{}
	default:
		return Diagnostic{Text: line}
	}
}

func parseValue(line string) (Message, error) {
	fields := strings.Fields(line)
	id := fields[0]
	if len(id) < 2 {
		return nil, fmt.Errorf("identifier %q: %w", id, ErrMalformed)
	}
	args := fields[1:]
	slot := id[1:]

	switch id[1] {
	case 'C', 'R':
		if id == ReferenceID {
			if len(args) < 1 || len(args) > 2 {
				return nil, fmt.Errorf("%s: got %d fields: %w", id, len(args), ErrFieldCount)
			}
			p, err := number(args[len(args)-1])
			if err != nil {
				return nil, fmt.Errorf("%s pressure: %w", id, err)
			}
			return ReferenceReading{Pressure: p}, nil
		}
		if !status.IsContainer(slot) {
			return nil, fmt.Errorf("%s: %w", id, ErrUnknownSlot)
		}
		sw, p, err := pair(id, args)
		if err != nil {
			return nil, err
		}
		if sw != 0 && sw != 1 {
			return nil, fmt.Errorf("%s switch %v: %w", id, sw, ErrMalformed)
		}
		return ContainerReading{Slot: slot, SwitchDown: sw == 1, Pressure: p}, nil

	case 'P':
		if !status.IsPump(slot) {
			return nil, fmt.Errorf("%s: %w", id, ErrUnknownSlot)
		}
		c, v, err := pair(id, args)
		if err != nil {
			return nil, err
		}
		return PumpReading{Slot: slot, Current: c, Voltage: v}, nil

	case 'V':
		if !status.IsValve(slot) {
			return nil, fmt.Errorf("%s: %w", id, ErrUnknownSlot)
		}
		c, v, err := pair(id, args)
		if err != nil {
			return nil, err
		}
		return ValveReading{Slot: slot, Current: c, Voltage: v}, nil

	default:
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownSlot)
	}
}

// pair parses exactly two numeric fields.
func pair(id string, args []string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("%s: got %d fields: %w", id, len(args), ErrFieldCount)
	}
	a, err := number(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", id, err)
	}
	b, err := number(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", id, err)
	}
	return a, b, nil
}

func number(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, ErrBadNumber)
	}
	return v, nil
}
