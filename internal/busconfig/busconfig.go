// Package busconfig parses the bus configuration document.
//
// The document is a YAML list of slave records under a "slaves" key. Parsing
// validates structure only — names present, base addresses parseable, pin
// bindings of a recognized shape. Cross-referencing against the IP catalog
// and resource validation happen later and elsewhere; a *Config is the
// ordered, immutable slave list and nothing more. Declaration order is
// significant: it fixes instantiation order and response-mux priority in the
// emitted module.
package busconfig

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PinBinding maps one interface pin onto the global I/O vector: either a
// start index (the pin's bits occupy a contiguous range from there) or an
// explicit per-bit index list.
type PinBinding struct {
	Start int
	Bits  []int // non-nil iff the binding was written as a list
}

// Explicit reports whether the binding was written as a per-bit list.
func (b PinBinding) Explicit() bool { return b.Bits != nil }

// UnmarshalYAML accepts a scalar integer (start index) or a sequence of
// integers (per-bit list).
func (b *PinBinding) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var start int
		if err := node.Decode(&start); err != nil {
			return fmt.Errorf("pin binding must be an integer or integer list")
		}
		b.Start = start
		b.Bits = nil
		return nil
	case yaml.SequenceNode:
		var bits []int
		if err := node.Decode(&bits); err != nil {
			return fmt.Errorf("pin binding list must contain only integers")
		}
		if len(bits) == 0 {
			return fmt.Errorf("pin binding list must not be empty")
		}
		b.Bits = bits
		b.Start = bits[0]
		return nil
	default:
		return fmt.Errorf("pin binding must be an integer or integer list")
	}
}

// MarshalYAML renders the binding back in the shape it was written.
func (b PinBinding) MarshalYAML() (any, error) {
	if b.Explicit() {
		return b.Bits, nil
	}
	return b.Start, nil
}

// Slave is one bus slave instance. Immutable after Parse.
type Slave struct {
	Name        string
	TypeID      string
	BaseAddress uint32
	IOPins      map[string]PinBinding
	IRQ         *int
}

// Config is the ordered slave list.
type Config struct {
	Slaves []Slave
}

// ConfigShapeError reports a structural problem in the document. SlaveIndex
// is -1 when the document itself (not one slave record) is malformed.
type ConfigShapeError struct {
	SlaveIndex int
	Field      string
	Reason     string
}

func (e *ConfigShapeError) Error() string {
	if e.SlaveIndex < 0 {
		return fmt.Sprintf("bus config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("bus config: slave %d: field %q: %s", e.SlaveIndex, e.Field, e.Reason)
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// rawSlave mirrors one slave record as written.
type rawSlave struct {
	Name        string                `yaml:"name"`
	Type        string                `yaml:"type"`
	BaseAddress string                `yaml:"base_address"`
	IOPins      map[string]PinBinding `yaml:"io_pins"`
	IRQ         *int                  `yaml:"irq"`
}

type rawConfig struct {
	Slaves []rawSlave `yaml:"slaves"`
}

// Parse validates the document shape and produces the ordered slave list.
// Structural malformation is fail-fast: a document whose shape is broken has
// no meaningful partial interpretation.
func Parse(raw []byte) (*Config, error) {
	var doc rawConfig
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigShapeError{SlaveIndex: -1, Field: "document", Reason: err.Error()}
	}
	if doc.Slaves == nil {
		return nil, &ConfigShapeError{SlaveIndex: -1, Field: "slaves", Reason: "missing slave list"}
	}

	cfg := &Config{Slaves: make([]Slave, 0, len(doc.Slaves))}
	names := make(map[string]bool, len(doc.Slaves))
	for i, rs := range doc.Slaves {
		if rs.Name == "" {
			return nil, &ConfigShapeError{SlaveIndex: i, Field: "name", Reason: "missing"}
		}
		if names[rs.Name] {
			return nil, &ConfigShapeError{SlaveIndex: i, Field: "name", Reason: fmt.Sprintf("duplicate slave name %q", rs.Name)}
		}
		names[rs.Name] = true
		if rs.Type == "" {
			return nil, &ConfigShapeError{SlaveIndex: i, Field: "type", Reason: "missing"}
		}
		if rs.BaseAddress == "" {
			return nil, &ConfigShapeError{SlaveIndex: i, Field: "base_address", Reason: "missing"}
		}
		base, err := ParseBaseAddress(rs.BaseAddress)
		if err != nil {
			return nil, &ConfigShapeError{SlaveIndex: i, Field: "base_address", Reason: err.Error()}
		}
		// Sorted so the fail-fast error names a stable pin when several
		// bindings are bad.
		pinNames := make([]string, 0, len(rs.IOPins))
		for pin := range rs.IOPins {
			pinNames = append(pinNames, pin)
		}
		sort.Strings(pinNames)
		for _, pin := range pinNames {
			binding := rs.IOPins[pin]
			for _, bit := range append([]int{binding.Start}, binding.Bits...) {
				if bit < 0 {
					return nil, &ConfigShapeError{SlaveIndex: i, Field: "io_pins." + pin, Reason: "negative bit index"}
				}
			}
		}
		cfg.Slaves = append(cfg.Slaves, Slave{
			Name:        rs.Name,
			TypeID:      rs.Type,
			BaseAddress: base,
			IOPins:      rs.IOPins,
			IRQ:         rs.IRQ,
		})
	}
	return cfg, nil
}

// ParseBaseAddress accepts "0x..." C spelling, "32'h..." Verilog spelling
// (underscores allowed), and plain decimal. The value must fit in 32 bits.
func ParseBaseAddress(s string) (uint32, error) {
	orig := s
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "32'h"); ok {
		s = "0x" + strings.ReplaceAll(rest, "_", "")
	} else if rest, ok := strings.CutPrefix(s, "32'H"); ok {
		s = "0x" + strings.ReplaceAll(rest, "_", "")
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unparsable base address %q", orig)
	}
	return uint32(v), nil
}

// ---------------------------------------------------------------------------
// File helpers
// ---------------------------------------------------------------------------

// LoadFile reads and parses a bus configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveFile marshals cfg back to YAML and writes it to path. Used by the
// interactive "add" workflow; generated documents round-trip through Parse.
func SaveFile(cfg *Config, path string) error {
	doc := rawConfig{Slaves: make([]rawSlave, 0, len(cfg.Slaves))}
	for _, s := range cfg.Slaves {
		doc.Slaves = append(doc.Slaves, rawSlave{
			Name:        s.Name,
			Type:        s.TypeID,
			BaseAddress: fmt.Sprintf("0x%08X", s.BaseAddress),
			IOPins:      s.IOPins,
			IRQ:         s.IRQ,
		})
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal bus config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
