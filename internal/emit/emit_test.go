package emit

// emit_test.go — Tests for artifact rendering.
//
// Inputs are produced by the real parser and validators so the fixtures stay
// honest; every test requires the validators to come back clean before
// rendering. Assertions check structural facts about the output text (counts
// and exact assign lines), not full golden files.

import (
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
    fifo: true
    interface_pins:
      - {name: rx, port: RX, width: 1, direction: in}
      - {name: tx, port: TX, width: 1, direction: out}
  GPIO14:
    cell_count: 400
    irq: true
    interface_pins:
      - {name: din, width: 7, direction: in}
      - {name: dout, width: 7, direction: out}
  I2C:
    cell_count: 800
    irq: true
    interface_pins:
      - {name: sda, port: SDA, width: 1, direction: bidir}
      - {name: scl_oe, port: SCL_OE, width: 1, direction: out, output_control: true}
`

// threeSlaveConfig is the reference scenario: two UARTs and a 14-bit GPIO,
// fully packed on bits 10..27 with the whole IRQ vector claimed.
const threeSlaveConfig = `
slaves:
  - name: uart0
    type: UART
    base_address: "0x30000000"
    io_pins: {rx: 10, tx: 11}
    irq: 0
  - name: uart1
    type: UART
    base_address: "0x30010000"
    io_pins: {rx: 12, tx: 13}
    irq: 1
  - name: gpio0
    type: GPIO14
    base_address: "0x30020000"
    io_pins: {din: 14, dout: 21}
    irq: 2
`

// render parses, validates, and emits, failing the test on any finding.
func render(t *testing.T, configYAML string) Artifacts {
	t.Helper()
	cfg, err := busconfig.Parse([]byte(configYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cat, err := catalog.Load(catalog.Source{Name: "lib.yaml", Data: []byte(testLib)})
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	addrs, addrErrs := validate.Addresses(cfg)
	io, irqs, bindErrs := validate.Bind(cfg, cat)
	if len(addrErrs) != 0 || len(bindErrs) != 0 {
		t.Fatalf("fixture does not validate: %v %v", addrErrs, bindErrs)
	}
	return Emit(cfg, addrs, io, irqs, cat)
}

// ---------------------------------------------------------------------------
// Determinism
// ---------------------------------------------------------------------------

func TestEmitDeterministic(t *testing.T) {
	a := render(t, threeSlaveConfig)
	b := render(t, threeSlaveConfig)
	if a.Interconnect != b.Interconnect {
		t.Error("Interconnect differs between identical runs")
	}
	if a.Header != b.Header {
		t.Error("Header differs between identical runs")
	}
	if a.WrapperInstance != b.WrapperInstance {
		t.Error("WrapperInstance differs between identical runs")
	}
}

// ---------------------------------------------------------------------------
// Interconnect structure
// ---------------------------------------------------------------------------

func TestEmitThreeSlaveScenario(t *testing.T) {
	v := render(t, threeSlaveConfig).Interconnect

	// Exactly three chip-select expressions, in declaration order.
	for i, base := range []string{"32'h30000000", "32'h30010000", "32'h30020000"} {
		want := "assign cs" + string(rune('0'+i)) + " = (wb_adr >= " + base + ")"
		if !strings.Contains(v, want) {
			t.Errorf("missing chip select %d: %q", i, want)
		}
	}
	if got := strings.Count(v, "assign cs"); got != 3 {
		t.Errorf("chip-select assigns = %d, want 3", got)
	}

	// Three-way priority mux: one if, two else-if, one default arm.
	if !strings.Contains(v, "if (cs0) begin") {
		t.Error("mux missing first arm for cs0")
	}
	if got := strings.Count(v, "else if (cs"); got != 2 {
		t.Errorf("else-if arms = %d, want 2", got)
	}
	if !strings.Contains(v, "selected_dat = 32'h0;") || !strings.Contains(v, "selected_ack = 1'b0;") {
		t.Error("mux missing deasserted default arm")
	}

	// Interrupt vector wiring: bit i driven by slave i's IRQ source.
	for i := 0; i < validate.IrqWidth; i++ {
		want := ".IRQ(user_irq[" + string(rune('0'+i)) + "])"
		if !strings.Contains(v, want) {
			t.Errorf("missing interrupt wiring %q", want)
		}
	}
	if !strings.Contains(v, "output [2:0]  user_irq") {
		t.Error("user_irq port not 3 bits wide")
	}

	// Instantiations in declaration order with bus plumbing.
	uart0 := strings.Index(v, "UART_WB uart0 (")
	uart1 := strings.Index(v, "UART_WB uart1 (")
	gpio0 := strings.Index(v, "GPIO14_WB gpio0 (")
	if uart0 < 0 || uart1 < 0 || gpio0 < 0 || !(uart0 < uart1 && uart1 < gpio0) {
		t.Errorf("instantiations missing or out of order: %d %d %d", uart0, uart1, gpio0)
	}
	if !strings.Contains(v, ".stb_i(wb_stb & cs1)") {
		t.Error("uart1 strobe not gated by its chip select")
	}

	// Pin connections: single bits and a contiguous range.
	for _, want := range []string{
		".RX(io_in[10])",
		".TX(io_out[11])",
		".din(io_in[20:14])",
		".dout(io_out[27:21])",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("missing pin connection %q", want)
		}
	}

	// Cell-count bookkeeping: 1500 + 1500 + 400.
	if !strings.Contains(v, "localparam TOTAL_WB_CELL_COUNT = 3400;") {
		t.Error("TOTAL_WB_CELL_COUNT not 3400")
	}
}

func TestEmitTopWindowChipSelect(t *testing.T) {
	// A window based at 0xFFFF0000 ends exactly at 2^32. The usual upper
	// bound (base + SLAVE_ADDR_SIZE) wraps to 32'h0 in Verilog and the
	// select would never assert, so that window gets a lower bound only.
	config := `
slaves:
  - name: uart0
    type: UART
    base_address: "0xFFFF0000"
    io_pins: {rx: 10, tx: 11}
    irq: 0
`
	v := render(t, config).Interconnect
	if !strings.Contains(v, "assign cs0 = (wb_adr >= 32'hFFFF0000);") {
		t.Error("top window chip select missing the lower-bound-only form")
	}
	if strings.Contains(v, "32'hFFFF0000 + SLAVE_ADDR_SIZE") {
		t.Error("top window chip select has a wrapping 32-bit upper bound")
	}
}

func TestEmitIdlePolicy(t *testing.T) {
	v := render(t, threeSlaveConfig).Interconnect

	// Unclaimed bits: output enabled, driven low.
	for _, bit := range []string{"0", "9", "28", "37"} {
		if !strings.Contains(v, "assign io_oen["+bit+"] = 1'b1;") ||
			!strings.Contains(v, "assign io_out["+bit+"] = 1'b0;") {
			t.Errorf("bit %s missing unclaimed idle assigns", bit)
		}
	}

	// Input sides of bound pins keep output enable deasserted.
	for _, bit := range []string{"10", "12", "14"} {
		if !strings.Contains(v, "assign io_oen["+bit+"] = 1'b0;") {
			t.Errorf("input bit %s not emitted with deasserted output enable", bit)
		}
	}
	if strings.Contains(v, "assign io_out[10]") {
		t.Error("input bit 10 must not get a data-line assign")
	}

	// Outputs driven by slaves get output enable asserted, no idle data.
	if !strings.Contains(v, "assign io_oen[11] = 1'b1;") {
		t.Error("output bit 11 missing asserted output enable")
	}
	if strings.Contains(v, "assign io_out[11]") {
		t.Error("output bit 11 is slave-driven, not idle-driven")
	}
}

func TestEmitBidirAndOutputControl(t *testing.T) {
	config := `
slaves:
  - name: i2c0
    type: I2C
    base_address: "0x30000000"
    io_pins: {sda: 5, scl_oe: 6}
    irq: 0
`
	v := render(t, config).Interconnect

	// Bidir pins connect data-in, data-out, and output-enable.
	for _, want := range []string{
		".SDA_i(io_in[5])",
		".SDA_o(io_out[5])",
		".SDA_oe(io_oen[5])",
		".SCL_OE(io_oen[6])",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("missing connection %q", want)
		}
	}

	// The IP owns those bits: no idle assigns for 5 or 6.
	for _, bit := range []string{"5", "6"} {
		if strings.Contains(v, "assign io_oen["+bit+"]") {
			t.Errorf("bit %s owned by the IP but got an idle output-enable assign", bit)
		}
	}
}

func TestEmitNonContiguousListRendersConcat(t *testing.T) {
	config := `
slaves:
  - name: gpio0
    type: GPIO14
    base_address: "0x30000000"
    io_pins:
      din: [0, 1, 2, 3, 4, 5, 6]
      dout: [7, 9, 11, 13, 15, 17, 19]
    irq: 0
`
	v := render(t, config).Interconnect
	// MSB first, per Verilog concatenation convention.
	want := ".dout({io_out[19], io_out[17], io_out[15], io_out[13], io_out[11], io_out[9], io_out[7]})"
	if !strings.Contains(v, want) {
		t.Errorf("missing concatenated connection %q", want)
	}
	// A contiguous explicit list still renders as a range.
	if !strings.Contains(v, ".din(io_in[6:0])") {
		t.Error("contiguous explicit list not rendered as a range")
	}
}

// ---------------------------------------------------------------------------
// Header
// ---------------------------------------------------------------------------

func TestEmitHeader(t *testing.T) {
	h := render(t, threeSlaveConfig).Header

	for _, want := range []string{
		"#ifndef __BUS_ADDR_MAP_H__",
		"#define BUS_SLAVE_WINDOW 0x00010000",
		"#define UART0_BASE 0x30000000",
		"#define UART1_BASE 0x30010000",
		"#define GPIO0_BASE 0x30020000",
	} {
		if !strings.Contains(h, want) {
			t.Errorf("header missing %q", want)
		}
	}

	// Declaration order preserved.
	if strings.Index(h, "UART0_BASE") > strings.Index(h, "UART1_BASE") {
		t.Error("header macros out of declaration order")
	}
}

// ---------------------------------------------------------------------------
// Wrapper fragment
// ---------------------------------------------------------------------------

func TestEmitWrapperInstance(t *testing.T) {
	w := render(t, threeSlaveConfig).WrapperInstance
	for _, want := range []string{
		"wb_bus u_wb_bus (",
		".wb_clk(wb_clk_i)",
		".io_oen(internal_io_oen[37:0])",
		"assign io_oeb = ~internal_io_oen;",
	} {
		if !strings.Contains(w, want) {
			t.Errorf("wrapper fragment missing %q", want)
		}
	}
}
