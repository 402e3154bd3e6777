package fabric

// fabric_test.go — Pipeline tests: a clean run emits, a dirty run pools
// every finding and emits nothing.

import (
	"errors"
	"strings"
	"testing"

	"busfab/internal/busconfig"
	"busfab/internal/catalog"
	"busfab/internal/validate"
)

const testLib = `
types:
  UART:
    cell_count: 1500
    irq: true
    interface_pins:
      - {name: rx, port: RX, width: 1, direction: in}
      - {name: tx, port: TX, width: 1, direction: out}
`

func load(t *testing.T, configYAML string) (*busconfig.Config, *catalog.Catalog) {
	t.Helper()
	cfg, err := busconfig.Parse([]byte(configYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cat, err := catalog.Load(catalog.Source{Name: "lib.yaml", Data: []byte(testLib)})
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return cfg, cat
}

func TestGenerateClean(t *testing.T) {
	cfg, cat := load(t, `
slaves:
  - name: uart0
    type: UART
    base_address: "0x30000000"
    io_pins: {rx: 10, tx: 11}
    irq: 0
`)
	a, err := Generate(cfg, cat)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(a.Interconnect, "UART_WB uart0 (") {
		t.Error("interconnect missing slave instantiation")
	}
	if !strings.Contains(a.Header, "#define UART0_BASE 0x30000000") {
		t.Error("header missing base macro")
	}
	if a.WrapperInstance == "" {
		t.Error("wrapper fragment empty")
	}
}

func TestGenerateSingleFinding(t *testing.T) {
	cfg, cat := load(t, `
slaves:
  - name: uart0
    type: UART
    base_address: "0x30000010"
    io_pins: {rx: 10, tx: 11}
    irq: 0
`)
	a, err := Generate(cfg, cat)
	if err == nil {
		t.Fatal("Generate succeeded with misaligned base")
	}
	if a.Interconnect != "" || a.Header != "" || a.WrapperInstance != "" {
		t.Error("artifacts emitted despite findings")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if len(ve.Findings) != 1 {
		t.Fatalf("findings = %d, want 1: %v", len(ve.Findings), ve.Findings)
	}
	var ma *validate.AddressMisalignedError
	if !errors.As(err, &ma) {
		t.Fatalf("misalignment not reachable via errors.As: %v", err)
	}
	if ma.Slave != "uart0" || ma.Base != 0x30000010 {
		t.Errorf("AddressMisalignedError = %+v", ma)
	}
}

func TestGeneratePoolsAcrossValidators(t *testing.T) {
	// One address conflict and one bit conflict; both must surface together.
	cfg, cat := load(t, `
slaves:
  - name: uart0
    type: UART
    base_address: "0x30000000"
    io_pins: {rx: 10, tx: 11}
    irq: 0
  - name: uart1
    type: UART
    base_address: "0x30000000"
    io_pins: {rx: 11, tx: 12}
    irq: 1
`)
	_, err := Generate(cfg, cat)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	var ac *validate.AddressConflictError
	if !errors.As(err, &ac) {
		t.Error("address conflict missing from pool")
	}
	var bc *validate.IOBitConflictError
	if !errors.As(err, &bc) {
		t.Error("bit conflict missing from pool")
	}
	if len(ve.Findings) != 2 {
		t.Errorf("findings = %d, want 2: %v", len(ve.Findings), ve.Findings)
	}

	// The message carries every finding, one per line.
	msg := err.Error()
	if !strings.Contains(msg, "configuration invalid:") {
		t.Errorf("message missing preamble: %q", msg)
	}
	if got := strings.Count(msg, "\n"); got != 2 {
		t.Errorf("message lines = %d, want one per finding: %q", got+1, msg)
	}
}
