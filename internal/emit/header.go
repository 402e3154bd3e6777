package emit

// header.go — C address-map header: one base-address macro per slave, in
// declaration order, plus the shared window size.

import (
	"fmt"
	"strings"

	"busfab/internal/busconfig"
	"busfab/internal/validate"
)

func header(cfg *busconfig.Config, addrs validate.AddressMap) string {
	const guard = "__BUS_ADDR_MAP_H__"

	var b strings.Builder
	fmt.Fprintf(&b, "#ifndef %s\n", guard)
	fmt.Fprintf(&b, "#define %s\n\n", guard)
	fmt.Fprintf(&b, "#define BUS_SLAVE_WINDOW 0x%08X\n\n", validate.Window)
	for _, s := range cfg.Slaves {
		fmt.Fprintf(&b, "#define %s_BASE 0x%08X\n", macroName(s.Name), addrs[s.Name].Base)
	}
	fmt.Fprintf(&b, "\n#endif // %s\n", guard)
	return b.String()
}

// macroName upper-cases a slave name and squashes anything that is not a
// C identifier character to underscore.
func macroName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
