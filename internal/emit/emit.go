// Package emit renders the validated bus model into text artifacts: the
// Verilog interconnect module, a C address-map header, and the wrapper
// instantiation fragment used for project integration.
//
// Emission is a pure function of its validated inputs: identical inputs
// produce byte-identical output. No timestamps, no map-order dependence —
// everything renders in bus-config declaration order.
package emit

import (
	"fmt"
	"strings"

	"busfab/internal/busconfig"
	"busfab/internal/catalog"
	"busfab/internal/validate"
)

// ModuleName is the name of the emitted interconnect module.
const ModuleName = "wb_bus"

// Artifacts holds the generated text. Pure value; the only pipeline output
// that outlives a run.
type Artifacts struct {
	// Interconnect is the complete Verilog source of the bus module.
	Interconnect string
	// Header is the C header enumerating slave base addresses.
	Header string
	// WrapperInstance is the instantiation fragment a project wrapper embeds
	// between its managed-region markers.
	WrapperInstance string
}

// Emit renders all artifacts from the validated maps. Callers must only
// invoke it with an empty diagnostic pool; Emit itself performs no checking.
func Emit(cfg *busconfig.Config, addrs validate.AddressMap, io *validate.IOAssignment, irqs validate.IrqMap, cat *catalog.Catalog) Artifacts {
	return Artifacts{
		Interconnect:    interconnect(cfg, addrs, io, irqs, cat),
		Header:          header(cfg, addrs),
		WrapperInstance: wrapperInstance(),
	}
}

// ---------------------------------------------------------------------------
// Interconnect module
// ---------------------------------------------------------------------------

func interconnect(cfg *busconfig.Config, addrs validate.AddressMap, io *validate.IOAssignment, irqs validate.IrqMap, cat *catalog.Catalog) string {
	var b strings.Builder

	totalCells := 0
	for _, s := range cfg.Slaves {
		if desc, err := cat.Lookup(s.TypeID); err == nil {
			totalCells += desc.CellCount
		}
	}

	b.WriteString("// Generated Wishbone bus interconnect. Do not edit: regenerate instead.\n\n")
	fmt.Fprintf(&b, "module %s(\n", ModuleName)
	b.WriteString("    input         wb_clk,\n")
	b.WriteString("    input         wb_rst,\n")
	b.WriteString("    input  [31:0] wb_adr,\n")
	b.WriteString("    input  [31:0] wb_dat_i,\n")
	b.WriteString("    output [31:0] wb_dat_o,\n")
	b.WriteString("    input         wb_we,\n")
	b.WriteString("    input         wb_stb,\n")
	b.WriteString("    input         wb_cyc,\n")
	b.WriteString("    output        wb_ack,\n")
	fmt.Fprintf(&b, "    input  [%d:0] io_in,\n", validate.VectorWidth-1)
	fmt.Fprintf(&b, "    output [%d:0] io_out,\n", validate.VectorWidth-1)
	fmt.Fprintf(&b, "    output [%d:0] io_oen,\n", validate.VectorWidth-1)
	fmt.Fprintf(&b, "    output [%d:0]  user_irq\n", validate.IrqWidth-1)
	b.WriteString(");\n\n")

	fmt.Fprintf(&b, "    localparam SLAVE_ADDR_SIZE = 32'h%04X_%04X;\n", validate.Window>>16, validate.Window&0xFFFF)
	fmt.Fprintf(&b, "    localparam TOTAL_WB_CELL_COUNT = %d;\n\n", totalCells)

	// Per-slave wires, declaration order.
	for i, s := range cfg.Slaves {
		fmt.Fprintf(&b, "    // Slave %d: %s\n", i, s.Name)
		fmt.Fprintf(&b, "    wire [31:0] slave%d_dat;\n", i)
		fmt.Fprintf(&b, "    wire        slave%d_ack;\n", i)
		fmt.Fprintf(&b, "    wire        cs%d;\n\n", i)
	}

	// Chip selects: asserted when the address falls inside the window.
	for i, s := range cfg.Slaves {
		r := addrs[s.Name]
		if r.End == 1<<32 {
			// The window ends exactly at the top of the address space. A
			// 32-bit upper-bound sum would wrap to zero and never assert,
			// so the lower bound alone delimits this window.
			fmt.Fprintf(&b, "    assign cs%d = (wb_adr >= 32'h%08X);\n", i, r.Base)
			continue
		}
		fmt.Fprintf(&b, "    assign cs%d = (wb_adr >= 32'h%08X) && (wb_adr < (32'h%08X + SLAVE_ADDR_SIZE));\n", i, r.Base, r.Base)
	}
	b.WriteString("\n")

	// Instantiations.
	for i, s := range cfg.Slaves {
		fmt.Fprintf(&b, "    // %s (%s)\n", s.Name, s.TypeID)
		fmt.Fprintf(&b, "    %s_WB %s (\n", s.TypeID, s.Name)
		conns := []string{
			".clk_i(wb_clk)",
			".rst_i(wb_rst)",
			".adr_i(wb_adr)",
			fmt.Sprintf(".dat_o(slave%d_dat)", i),
			".dat_i(wb_dat_i)",
			".we_i(wb_we)",
			fmt.Sprintf(".stb_i(wb_stb & cs%d)", i),
			fmt.Sprintf(".cyc_i(wb_cyc & cs%d)", i),
			fmt.Sprintf(".ack_o(slave%d_ack)", i),
		}
		conns = append(conns, pinConnections(s.Name, io)...)
		if idx, ok := irqs[s.Name]; ok {
			conns = append(conns, fmt.Sprintf(".IRQ(user_irq[%d])", idx))
		}
		b.WriteString("        " + strings.Join(conns, ",\n        ") + "\n")
		b.WriteString("    );\n\n")
	}

	// Response mux: priority chain in declaration order. The address map
	// guarantees at most one asserted chip select; the chain still defaults
	// to zero data and deasserted ack when none is.
	b.WriteString("    // Response mux (priority in declaration order)\n")
	b.WriteString("    reg [31:0] selected_dat;\n")
	b.WriteString("    reg        selected_ack;\n")
	b.WriteString("    always @(*) begin\n")
	for i := range cfg.Slaves {
		if i == 0 {
			fmt.Fprintf(&b, "        if (cs%d) begin\n", i)
		} else {
			fmt.Fprintf(&b, "        else if (cs%d) begin\n", i)
		}
		fmt.Fprintf(&b, "            selected_dat = slave%d_dat;\n", i)
		fmt.Fprintf(&b, "            selected_ack = slave%d_ack;\n", i)
		b.WriteString("        end\n")
	}
	if len(cfg.Slaves) > 0 {
		b.WriteString("        else begin\n")
	} else {
		b.WriteString("        begin\n")
	}
	b.WriteString("            selected_dat = 32'h0;\n")
	b.WriteString("            selected_ack = 1'b0;\n")
	b.WriteString("        end\n")
	b.WriteString("    end\n\n")
	b.WriteString("    assign wb_dat_o = selected_dat;\n")
	b.WriteString("    assign wb_ack = selected_ack;\n\n")

	// Idle policy for the global I/O vector. Unclaimed bits are driven low
	// with output enabled; claimed input bits keep output enable deasserted;
	// output-control and bidir bits are owned by the IP.
	b.WriteString("    // Global I/O idle policy\n")
	for bit := 0; bit < validate.VectorWidth; bit++ {
		switch io.Mode(bit) {
		case validate.BitUnclaimed:
			fmt.Fprintf(&b, "    assign io_oen[%d] = 1'b1;\n", bit)
			fmt.Fprintf(&b, "    assign io_out[%d] = 1'b0;\n", bit)
		case validate.BitInput:
			fmt.Fprintf(&b, "    assign io_oen[%d] = 1'b0;\n", bit)
		case validate.BitOutput:
			fmt.Fprintf(&b, "    assign io_oen[%d] = 1'b1;\n", bit)
		}
	}
	b.WriteString("\nendmodule\n")

	return b.String()
}

// pinConnections renders the external-interface port connections for one
// slave, in descriptor pin order.
func pinConnections(slave string, io *validate.IOAssignment) []string {
	var conns []string
	for _, pa := range io.Pins {
		if pa.Slave != slave {
			continue
		}
		switch {
		case pa.Direction == catalog.DirIn:
			conns = append(conns, fmt.Sprintf(".%s(%s)", pa.Port, vectorRef("io_in", pa.Bits)))
		case pa.Direction == catalog.DirBidir:
			conns = append(conns,
				fmt.Sprintf(".%s_i(%s)", pa.Port, vectorRef("io_in", pa.Bits)),
				fmt.Sprintf(".%s_o(%s)", pa.Port, vectorRef("io_out", pa.Bits)),
				fmt.Sprintf(".%s_oe(%s)", pa.Port, vectorRef("io_oen", pa.Bits)),
			)
		case pa.OutputControl:
			conns = append(conns, fmt.Sprintf(".%s(%s)", pa.Port, vectorRef("io_oen", pa.Bits)))
		default:
			conns = append(conns, fmt.Sprintf(".%s(%s)", pa.Port, vectorRef("io_out", pa.Bits)))
		}
	}
	return conns
}

// vectorRef renders a reference into a vector signal for a bit list (LSB
// first). Single bit → vec[n]; contiguous ascending run → vec[hi:lo];
// anything else → a concatenation, MSB first per Verilog convention.
func vectorRef(vec string, bits []int) string {
	if len(bits) == 1 {
		return fmt.Sprintf("%s[%d]", vec, bits[0])
	}
	contiguous := true
	for i := 1; i < len(bits); i++ {
		if bits[i] != bits[i-1]+1 {
			contiguous = false
			break
		}
	}
	if contiguous {
		return fmt.Sprintf("%s[%d:%d]", vec, bits[len(bits)-1], bits[0])
	}
	parts := make([]string, len(bits))
	for i, bit := range bits {
		parts[len(bits)-1-i] = fmt.Sprintf("%s[%d]", vec, bit)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
