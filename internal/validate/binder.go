package validate

// binder.go — resolves pin and IRQ bindings against the IP catalog.
//
// Each slave's io_pins entries are matched to its descriptor's declared
// interface pins, producing concrete global bit assignments; IRQ indices are
// checked against the interrupt vector. A slave whose type is unknown is
// skipped (fatal for that slave, not for the run) so the remaining slaves
// still validate.

import (
	"fmt"

	"busfab/internal/busconfig"
	"busfab/internal/catalog"
)

// BitMode is the resolved electrical role of one global I/O bit.
type BitMode uint8

const (
	// BitUnclaimed bits get the idle policy: output enabled, driven low.
	BitUnclaimed BitMode = iota
	// BitInput bits are the declared input side of a bound pin: output
	// enable stays deasserted even though the bit is otherwise idle.
	BitInput
	// BitOutput bits are driven by a slave; output enable asserted.
	BitOutput
	// BitOutputControl bits have their output enable driven by the IP
	// itself; no default assignment is emitted.
	BitOutputControl
	// BitBidir bits connect data-in, data-out, and output-enable to the IP.
	BitBidir
)

// PinAssignment is one descriptor pin resolved to concrete global bits.
// Bits are listed LSB first: Bits[0] carries bit 0 of the port.
type PinAssignment struct {
	Slave         string
	Pin           string
	Port          string
	Direction     catalog.Direction
	OutputControl bool
	Bits          []int
}

// IOAssignment is the resolved global I/O vector: one mode per bit plus the
// ordered pin assignments (config declaration order, then descriptor pin
// order) the emitter renders from.
type IOAssignment struct {
	Pins  []PinAssignment
	modes [VectorWidth]BitMode
}

// Mode returns the resolved role of one global bit.
func (a *IOAssignment) Mode(bit int) BitMode { return a.modes[bit] }

// IrqMap assigns interrupt-vector indices to slave names.
type IrqMap map[string]int

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// IOBitRangeError reports a pin binding resolving outside the global vector,
// or a per-bit list whose length disagrees with the declared pin width.
type IOBitRangeError struct {
	Slave  string
	Pin    string
	Reason string
}

func (e *IOBitRangeError) Error() string {
	return fmt.Sprintf("io: slave %q pin %q: %s", e.Slave, e.Pin, e.Reason)
}

// IOBitConflictError reports one global bit claimed by two bindings. The two
// slaves may be the same instance: aliasing two signals of one IP onto one
// external pin is an error, never a valid configuration.
type IOBitConflictError struct {
	SlaveA string
	PinA   string
	SlaveB string
	PinB   string
	Bit    int
}

func (e *IOBitConflictError) Error() string {
	return fmt.Sprintf("io: bit %d claimed by both %s.%s and %s.%s",
		e.Bit, e.SlaveA, e.PinA, e.SlaveB, e.PinB)
}

// MissingPinBindingError reports a descriptor pin with no io_pins entry.
type MissingPinBindingError struct {
	Slave string
	Pin   string
}

func (e *MissingPinBindingError) Error() string {
	return fmt.Sprintf("io: slave %q: descriptor pin %q has no io_pins binding", e.Slave, e.Pin)
}

// UnknownPinError reports an io_pins key the descriptor does not declare.
type UnknownPinError struct {
	Slave string
	Pin   string
}

func (e *UnknownPinError) Error() string {
	return fmt.Sprintf("io: slave %q: io_pins names %q, which the IP type does not declare", e.Slave, e.Pin)
}

// IrqOutOfRangeError reports an interrupt index outside [0, IrqWidth).
type IrqOutOfRangeError struct {
	Slave string
	Index int
}

func (e *IrqOutOfRangeError) Error() string {
	return fmt.Sprintf("irq: slave %q: index %d outside [0, %d)", e.Slave, e.Index, IrqWidth)
}

// IrqConflictError reports one interrupt index claimed by two slaves.
type IrqConflictError struct {
	SlaveA string
	SlaveB string
	Index  int
}

func (e *IrqConflictError) Error() string {
	return fmt.Sprintf("irq: index %d claimed by both %q and %q", e.Index, e.SlaveA, e.SlaveB)
}

// IrqUnsupportedError reports an irq binding on an IP type without
// interrupt capability.
type IrqUnsupportedError struct {
	Slave  string
	TypeID string
}

func (e *IrqUnsupportedError) Error() string {
	return fmt.Sprintf("irq: slave %q: IP type %q has no interrupt output", e.Slave, e.TypeID)
}

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

// bitClaim remembers the first claimant of a global bit for conflict reports.
type bitClaim struct {
	slave string
	pin   string
}

// Bind resolves every slave's pin and IRQ bindings. Exhaustive: all findings
// across the whole configuration come back together. The assignment reflects
// only successfully resolved bindings and stays usable for inspection even
// when findings exist.
func Bind(cfg *busconfig.Config, cat *catalog.Catalog) (*IOAssignment, IrqMap, []error) {
	var errs []error

	assign := &IOAssignment{}
	irqs := make(IrqMap)
	claimedBits := make(map[int]bitClaim)
	claimedIrqs := make(map[int]string)

	for _, slave := range cfg.Slaves {
		desc, err := cat.Lookup(slave.TypeID)
		if err != nil {
			errs = append(errs, fmt.Errorf("slave %q: %w", slave.Name, err))
			continue
		}

		// io_pins keys the descriptor does not declare.
		declared := make(map[string]bool, len(desc.Pins))
		for _, p := range desc.Pins {
			declared[p.Name] = true
		}
		for pin := range slave.IOPins {
			if !declared[pin] {
				errs = append(errs, &UnknownPinError{Slave: slave.Name, Pin: pin})
			}
		}

		// Descriptor pins, in declaration order.
		for _, pin := range desc.Pins {
			binding, ok := slave.IOPins[pin.Name]
			if !ok {
				errs = append(errs, &MissingPinBindingError{Slave: slave.Name, Pin: pin.Name})
				continue
			}
			bits, err := resolveBits(slave.Name, pin, binding)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, bit := range bits {
				if prev, taken := claimedBits[bit]; taken {
					errs = append(errs, &IOBitConflictError{
						SlaveA: prev.slave, PinA: prev.pin,
						SlaveB: slave.Name, PinB: pin.Name,
						Bit: bit,
					})
					continue
				}
				claimedBits[bit] = bitClaim{slave: slave.Name, pin: pin.Name}
				assign.modes[bit] = pinMode(pin)
			}
			assign.Pins = append(assign.Pins, PinAssignment{
				Slave:         slave.Name,
				Pin:           pin.Name,
				Port:          pin.Port,
				Direction:     pin.Direction,
				OutputControl: pin.OutputControl,
				Bits:          bits,
			})
		}

		// IRQ binding.
		if slave.IRQ == nil {
			continue
		}
		idx := *slave.IRQ
		if !desc.HasIRQ {
			errs = append(errs, &IrqUnsupportedError{Slave: slave.Name, TypeID: slave.TypeID})
			continue
		}
		if idx < 0 || idx >= IrqWidth {
			errs = append(errs, &IrqOutOfRangeError{Slave: slave.Name, Index: idx})
			continue
		}
		if prev, taken := claimedIrqs[idx]; taken {
			errs = append(errs, &IrqConflictError{SlaveA: prev, SlaveB: slave.Name, Index: idx})
			continue
		}
		claimedIrqs[idx] = slave.Name
		irqs[slave.Name] = idx
	}

	return assign, irqs, errs
}

// resolveBits turns one binding into the concrete global bit list, checking
// vector bounds and (for explicit lists) the declared width.
func resolveBits(slave string, pin catalog.InterfacePin, binding busconfig.PinBinding) ([]int, error) {
	var bits []int
	if binding.Explicit() {
		if len(binding.Bits) != pin.Width {
			return nil, &IOBitRangeError{
				Slave: slave, Pin: pin.Name,
				Reason: fmt.Sprintf("binding lists %d bits, pin width is %d", len(binding.Bits), pin.Width),
			}
		}
		bits = append([]int(nil), binding.Bits...)
	} else {
		bits = make([]int, pin.Width)
		for i := range bits {
			bits[i] = binding.Start + i
		}
	}
	for _, bit := range bits {
		if bit < 0 || bit >= VectorWidth {
			return nil, &IOBitRangeError{
				Slave: slave, Pin: pin.Name,
				Reason: fmt.Sprintf("bit %d outside [0, %d)", bit, VectorWidth),
			}
		}
	}
	return bits, nil
}

// pinMode maps a descriptor pin to the bit mode its claimed bits take.
func pinMode(pin catalog.InterfacePin) BitMode {
	switch {
	case pin.Direction == catalog.DirIn:
		return BitInput
	case pin.Direction == catalog.DirBidir:
		return BitBidir
	case pin.OutputControl:
		return BitOutputControl
	default:
		return BitOutput
	}
}
