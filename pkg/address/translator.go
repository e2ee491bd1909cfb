// Package address converts between hierarchical PLC notation
// (%QX12.3 style) and the flat linear index the wire protocol uses.
// It is pure and deterministic: no I/O, no state.
package address

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"epibridge/pkg/runtime"
)

var (
	ErrAddressFormat     = errors.New("malformed hierarchical address")
	ErrUnknownSignalKind = errors.New("signal kind has no address prefix")
)

// SlaveCoilThreshold separates the primary digital address range from the
// slave variant. The two ranges are contiguous on the wire; only the kind
// name differs, so the same boundary must hold in both directions.
const SlaveCoilThreshold = 799

// bitModulus is the number of bit positions per major component.
const bitModulus = 8

var kindPrefix = map[runtime.SignalKind]string{
	runtime.DigitalOutputCoil:           "%QX",
	runtime.DigitalOutputSlaveCoil:      "%QX",
	runtime.DigitalInputContact:         "%IX",
	runtime.DigitalInputSlaveContact:    "%IX",
	runtime.AnalogInputRegister:         "%IW",
	runtime.AnalogOutputHoldingRegister: "%QW",
	runtime.MemoryRegister16:            "%MW",
	runtime.MemoryRegister32:            "%MD",
	runtime.MemoryRegister64:            "%ML",
}

var hierPattern = regexp.MustCompile(`^(%[A-Z]{2})(\d+)(?:\.(\d))?$`)

// Prefix returns the hierarchical notation prefix for a kind.
func Prefix(kind runtime.SignalKind) (string, error) {
	p, ok := kindPrefix[kind]
	if !ok {
		return "", ErrUnknownSignalKind
	}
	return p, nil
}

// ToLinear parses a hierarchical address and returns the linear index for
// the given kind. Bit kinds expect <prefix><major>.<minor> with minor in
// [0,7]; word kinds expect <prefix><major> with no minor component.
func ToLinear(kind runtime.SignalKind, hier string) (uint16, error) {
	prefix, ok := kindPrefix[kind]
	if !ok {
		return 0, ErrUnknownSignalKind
	}

	m := hierPattern.FindStringSubmatch(hier)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrAddressFormat, hier)
	}
	if m[1] != prefix {
		return 0, fmt.Errorf("%w: %q does not match prefix %s of kind %s", ErrAddressFormat, hier, prefix, kind)
	}

	major, err := strconv.ParseUint(m[2], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrAddressFormat, hier)
	}

	if !kind.BitAddressed() {
		if m[3] != "" {
			return 0, fmt.Errorf("%w: word address %q must not carry a bit component", ErrAddressFormat, hier)
		}
		return uint16(major), nil
	}

	if m[3] == "" {
		return 0, fmt.Errorf("%w: bit address %q requires a .minor component", ErrAddressFormat, hier)
	}
	minor, err := strconv.ParseUint(m[3], 10, 8)
	if err != nil || minor >= bitModulus {
		return 0, fmt.Errorf("%w: bit component of %q must be 0..7", ErrAddressFormat, hier)
	}

	linear := major*bitModulus + minor
	if linear > 0xFFFF {
		return 0, fmt.Errorf("%w: %q exceeds the linear address space", ErrAddressFormat, hier)
	}
	return uint16(linear), nil
}

// ToHierarchical renders the linear index in the kind's hierarchical
// notation: major = linear / 8, minor = linear mod 8 for bit kinds, and
// the bare index for word kinds.
func ToHierarchical(kind runtime.SignalKind, linear uint16) (string, error) {
	prefix, ok := kindPrefix[kind]
	if !ok {
		return "", ErrUnknownSignalKind
	}
	if !kind.BitAddressed() {
		return fmt.Sprintf("%s%d", prefix, linear), nil
	}
	return fmt.Sprintf("%s%d.%d", prefix, linear/bitModulus, linear%bitModulus), nil
}

// Classify reclassifies digital kinds across the slave threshold so the
// kind name and the linear address can never disagree: at or below the
// threshold the primary variant holds, above it the slave variant. Other
// kinds pass through untouched.
func Classify(kind runtime.SignalKind, linear uint16) runtime.SignalKind {
	switch kind {
	case runtime.DigitalOutputCoil, runtime.DigitalOutputSlaveCoil:
		if linear > SlaveCoilThreshold {
			return runtime.DigitalOutputSlaveCoil
		}
		return runtime.DigitalOutputCoil
	case runtime.DigitalInputContact, runtime.DigitalInputSlaveContact:
		if linear > SlaveCoilThreshold {
			return runtime.DigitalInputSlaveContact
		}
		return runtime.DigitalInputContact
	}
	return kind
}

// Increment rolls a hierarchical address forward by one position. Bit
// addresses wrap the minor component at the modulus and carry into major.
func Increment(kind runtime.SignalKind, hier string) (string, error) {
	linear, err := ToLinear(kind, hier)
	if err != nil {
		return "", err
	}
	if linear == 0xFFFF {
		return "", fmt.Errorf("%w: %q is the last address of its space", ErrAddressFormat, hier)
	}
	return ToHierarchical(kind, linear+1)
}

// Decrement rolls a hierarchical address back by one position. A bit
// address at minor 0 borrows from major, landing on minor 7.
func Decrement(kind runtime.SignalKind, hier string) (string, error) {
	linear, err := ToLinear(kind, hier)
	if err != nil {
		return "", err
	}
	if linear == 0 {
		return "", fmt.Errorf("%w: %q is the first address of its space", ErrAddressFormat, hier)
	}
	return ToHierarchical(kind, linear-1)
}
