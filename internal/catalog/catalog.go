// Package catalog loads and indexes IP descriptors.
//
// A catalog is built once per run from one or more descriptor collections
// (JSON or YAML documents already fetched by the caller), merged in caller
// order, and frozen. Every later pipeline stage receives the same read-only
// *Catalog value; nothing mutates it after Load returns.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Direction is the signal direction of one interface pin.
type Direction string

const (
	DirIn    Direction = "in"
	DirOut   Direction = "out"
	DirBidir Direction = "bidir"
)

// InterfacePin describes one external interface signal of an IP type.
//
// Port is the Verilog port name the signal appears under in an instantiation;
// when the descriptor leaves it empty it defaults to Name. OutputControl
// marks an output that drives the pad output-enable line directly instead of
// the pad data line.
type InterfacePin struct {
	Name          string
	Port          string
	Width         int
	Direction     Direction
	OutputControl bool
	Description   string
}

// Descriptor is the immutable capability record for one IP type.
type Descriptor struct {
	TypeID      string
	CellCount   int
	HasIRQ      bool
	HasFIFO     bool
	Pins        []InterfacePin
	Description string
}

// Source is one pre-fetched descriptor collection. Name is provenance only
// (file path, URL) and appears in duplicate-definition diagnostics.
type Source struct {
	Name string
	Data []byte
}

// Catalog maps type IDs to descriptors. Frozen after Load.
type Catalog struct {
	byType map[string]Descriptor
	origin map[string]string // type ID → source name, for duplicate reports
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// DuplicateTypeError reports the same type ID defined with differing content
// in two sources. Identical re-definitions are tolerated.
type DuplicateTypeError struct {
	TypeID  string
	SourceA string
	SourceB string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("catalog: type %q defined with conflicting content in %s and %s",
		e.TypeID, e.SourceA, e.SourceB)
}

// MalformedDescriptorError reports a descriptor field that is missing or of
// the wrong shape.
type MalformedDescriptorError struct {
	TypeID string
	Field  string
}

func (e *MalformedDescriptorError) Error() string {
	return fmt.Sprintf("catalog: type %q: malformed field %q", e.TypeID, e.Field)
}

// UnknownTypeError reports a lookup of a type ID the catalog does not hold.
type UnknownTypeError struct {
	TypeID string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("catalog: unknown IP type %q", e.TypeID)
}

// ---------------------------------------------------------------------------
// Raw document shape
// ---------------------------------------------------------------------------

// rawPin mirrors one interface_pins entry as it appears on disk.
type rawPin struct {
	Name          string `yaml:"name" json:"name"`
	Port          string `yaml:"port" json:"port"`
	Width         int    `yaml:"width" json:"width"`
	Direction     string `yaml:"direction" json:"direction"`
	OutputControl bool   `yaml:"output_control" json:"output_control"`
	Description   string `yaml:"description" json:"description"`
}

// rawDescriptor mirrors one catalog entry as it appears on disk.
type rawDescriptor struct {
	CellCount   *int     `yaml:"cell_count" json:"cell_count"`
	IRQ         bool     `yaml:"irq" json:"irq"`
	FIFO        bool     `yaml:"fifo" json:"fifo"`
	Pins        []rawPin `yaml:"interface_pins" json:"interface_pins"`
	Description string   `yaml:"description" json:"description"`
}

// rawDocument is the top-level shape of one descriptor collection:
// a mapping of type ID → descriptor under a "types" key.
type rawDocument struct {
	Types map[string]rawDescriptor `yaml:"types" json:"types"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load merges descriptor collections in argument order and freezes the
// result. Sources may arrive from parallel fetches; the merge itself is
// deterministic in the supplied order. A type ID redefined with identical
// content is accepted; redefined with differing content it is fatal
// regardless of which source came first.
func Load(sources ...Source) (*Catalog, error) {
	c := &Catalog{
		byType: make(map[string]Descriptor),
		origin: make(map[string]string),
	}
	for _, src := range sources {
		doc, err := decode(src)
		if err != nil {
			return nil, err
		}
		// Merge entries in sorted key order so any error points at a stable
		// first offender.
		ids := make([]string, 0, len(doc.Types))
		for id := range doc.Types {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			desc, err := buildDescriptor(id, doc.Types[id])
			if err != nil {
				return nil, err
			}
			if prev, exists := c.byType[id]; exists {
				if !equalDescriptors(prev, desc) {
					return nil, &DuplicateTypeError{
						TypeID:  id,
						SourceA: c.origin[id],
						SourceB: src.Name,
					}
				}
				continue // identical re-definition
			}
			c.byType[id] = desc
			c.origin[id] = src.Name
		}
	}
	return c, nil
}

// decode unmarshals a source body. A body whose first significant byte is
// '{' is treated as JSON; everything else goes through the YAML decoder.
func decode(src Source) (rawDocument, error) {
	var doc rawDocument
	trimmed := bytes.TrimLeft(src.Data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(src.Data, &doc); err != nil {
			return doc, fmt.Errorf("catalog: parse %s: %w", src.Name, err)
		}
	} else {
		if err := yaml.Unmarshal(src.Data, &doc); err != nil {
			return doc, fmt.Errorf("catalog: parse %s: %w", src.Name, err)
		}
	}
	if doc.Types == nil {
		return doc, fmt.Errorf("catalog: parse %s: missing \"types\" mapping", src.Name)
	}
	return doc, nil
}

// buildDescriptor validates one raw entry and produces the frozen form.
func buildDescriptor(id string, raw rawDescriptor) (Descriptor, error) {
	if raw.CellCount == nil || *raw.CellCount < 0 {
		return Descriptor{}, &MalformedDescriptorError{TypeID: id, Field: "cell_count"}
	}
	pins := make([]InterfacePin, 0, len(raw.Pins))
	seen := make(map[string]bool, len(raw.Pins))
	for _, rp := range raw.Pins {
		if rp.Name == "" {
			return Descriptor{}, &MalformedDescriptorError{TypeID: id, Field: "interface_pins.name"}
		}
		if seen[rp.Name] {
			return Descriptor{}, &MalformedDescriptorError{TypeID: id, Field: "interface_pins." + rp.Name}
		}
		seen[rp.Name] = true
		if rp.Width < 1 {
			return Descriptor{}, &MalformedDescriptorError{TypeID: id, Field: "interface_pins." + rp.Name + ".width"}
		}
		dir := Direction(rp.Direction)
		switch dir {
		case DirIn, DirOut, DirBidir:
		default:
			return Descriptor{}, &MalformedDescriptorError{TypeID: id, Field: "interface_pins." + rp.Name + ".direction"}
		}
		if dir != DirOut && rp.OutputControl {
			// output_control only makes sense on an output pin.
			return Descriptor{}, &MalformedDescriptorError{TypeID: id, Field: "interface_pins." + rp.Name + ".output_control"}
		}
		port := rp.Port
		if port == "" {
			port = rp.Name
		}
		pins = append(pins, InterfacePin{
			Name:          rp.Name,
			Port:          port,
			Width:         rp.Width,
			Direction:     dir,
			OutputControl: rp.OutputControl,
			Description:   rp.Description,
		})
	}
	return Descriptor{
		TypeID:      id,
		CellCount:   *raw.CellCount,
		HasIRQ:      raw.IRQ,
		HasFIFO:     raw.FIFO,
		Pins:        pins,
		Description: raw.Description,
	}, nil
}

// equalDescriptors compares two descriptors field by field. Pin order is
// significant: two entries listing the same pins in a different order are
// different descriptors.
func equalDescriptors(a, b Descriptor) bool {
	if a.TypeID != b.TypeID || a.CellCount != b.CellCount ||
		a.HasIRQ != b.HasIRQ || a.HasFIFO != b.HasFIFO ||
		a.Description != b.Description || len(a.Pins) != len(b.Pins) {
		return false
	}
	for i := range a.Pins {
		if a.Pins[i] != b.Pins[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Lookup returns the descriptor for typeID.
func (c *Catalog) Lookup(typeID string) (Descriptor, error) {
	desc, ok := c.byType[typeID]
	if !ok {
		return Descriptor{}, &UnknownTypeError{TypeID: typeID}
	}
	return desc, nil
}

// TypeIDs returns all known type IDs, sorted.
func (c *Catalog) TypeIDs() []string {
	ids := make([]string, 0, len(c.byType))
	for id := range c.byType {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of descriptors in the catalog.
func (c *Catalog) Len() int { return len(c.byType) }
