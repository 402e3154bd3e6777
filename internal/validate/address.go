// Package validate checks a parsed bus configuration against the IP catalog
// and the shared resource spaces: the address map, the global I/O vector, and
// the interrupt vector.
//
// Both validators are exhaustive, not fail-fast: every independent violation
// found in one run is collected and returned together, so one invocation
// surfaces every conflict in the configuration. The caller pools the
// findings and withholds emission while any remain.
package validate

import (
	"fmt"
	"sort"

	"busfab/internal/busconfig"
)

// Shared resource dimensions. Window is the uniform address window reserved
// per slave; VectorWidth is the global external-pin vector; IrqWidth is the
// interrupt vector.
const (
	Window      uint32 = 0x1_0000
	VectorWidth        = 38
	IrqWidth           = 3
)

// Range is one slave's address window, [Base, End).
// End is 64-bit: a window based at 0xFFFF0000 ends exactly at 2^32.
type Range struct {
	Base uint32
	End  uint64
}

// AddressMap assigns each slave (by name) its address window.
type AddressMap map[string]Range

// AddressMisalignedError reports a base address not aligned to Window.
type AddressMisalignedError struct {
	Slave string
	Base  uint32
}

func (e *AddressMisalignedError) Error() string {
	return fmt.Sprintf("address: slave %q: base 0x%08X not aligned to window size 0x%X", e.Slave, e.Base, Window)
}

// AddressConflictError reports two overlapping address windows.
type AddressConflictError struct {
	SlaveA string
	SlaveB string
	BaseA  uint32
	BaseB  uint32
}

func (e *AddressConflictError) Error() string {
	return fmt.Sprintf("address: slaves %q (base 0x%08X) and %q (base 0x%08X) have overlapping windows",
		e.SlaveA, e.BaseA, e.SlaveB, e.BaseB)
}

// Addresses computes the address map and checks alignment and disjointness.
// All findings across the whole configuration are returned together. The map
// is returned even when findings exist; the caller decides whether it is
// usable.
func Addresses(cfg *busconfig.Config) (AddressMap, []error) {
	var errs []error

	m := make(AddressMap, len(cfg.Slaves))
	for _, s := range cfg.Slaves {
		if s.BaseAddress%Window != 0 {
			errs = append(errs, &AddressMisalignedError{Slave: s.Name, Base: s.BaseAddress})
		}
		m[s.Name] = Range{Base: s.BaseAddress, End: uint64(s.BaseAddress) + uint64(Window)}
	}

	// Overlaps are pairwise-adjacent after sorting by base. Stable sort keeps
	// declaration order for equal bases so conflict pairs name the earlier
	// slave first.
	sorted := make([]busconfig.Slave, len(cfg.Slaves))
	copy(sorted, cfg.Slaves)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BaseAddress < sorted[j].BaseAddress
	})
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		if m[a.Name].End > uint64(b.BaseAddress) {
			errs = append(errs, &AddressConflictError{
				SlaveA: a.Name,
				SlaveB: b.Name,
				BaseA:  a.BaseAddress,
				BaseB:  b.BaseAddress,
			})
		}
	}

	return m, errs
}
