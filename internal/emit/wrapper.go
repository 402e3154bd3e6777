package emit

// wrapper.go — the instantiation fragment a Caravel user-project wrapper
// embeds in its managed region. The wrapper file itself is externally owned;
// only this fragment is ours, applied between marker lines by the patcher.

import (
	"fmt"
	"strings"

	"busfab/internal/validate"
)

func wrapperInstance() string {
	var b strings.Builder
	b.WriteString("wire [`MPRJ_IO_PADS-1:0] internal_io_oen;\n\n")
	fmt.Fprintf(&b, "%s u_%s (\n", ModuleName, ModuleName)
	b.WriteString("    .wb_clk(wb_clk_i),\n")
	b.WriteString("    .wb_rst(wb_rst_i),\n")
	b.WriteString("    .wb_adr(wbs_adr_i),\n")
	b.WriteString("    .wb_dat_o(wbs_dat_o),\n")
	b.WriteString("    .wb_dat_i(wbs_dat_i),\n")
	b.WriteString("    .wb_we(wbs_we_i),\n")
	b.WriteString("    .wb_stb(wbs_stb_i),\n")
	b.WriteString("    .wb_cyc(wbs_cyc_i),\n")
	b.WriteString("    .wb_ack(wbs_ack_o),\n")
	fmt.Fprintf(&b, "    .io_in(io_in[%d:0]),\n", validate.VectorWidth-1)
	fmt.Fprintf(&b, "    .io_out(io_out[%d:0]),\n", validate.VectorWidth-1)
	fmt.Fprintf(&b, "    .io_oen(internal_io_oen[%d:0]),\n", validate.VectorWidth-1)
	b.WriteString("    .user_irq(user_irq)\n")
	b.WriteString(");\n\n")
	b.WriteString("// Pad output enables are active low on the wrapper side.\n")
	b.WriteString("assign io_oeb = ~internal_io_oen;\n")
	return b.String()
}
