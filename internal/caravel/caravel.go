// Package caravel integrates generated artifacts into a Caravel user-project
// directory tree.
//
// Expected layout under the project root:
//
//	verilog/rtl/user_project_wrapper.v   # externally owned, one managed region
//	openlane/user_project_wrapper/config.json
//
// The interconnect source is written whole (we own that file); the wrapper is
// only ever patched between its marker pair, and the OpenLane config is
// updated structurally. Concurrent integration runs against the same project
// root must be serialized by the caller.
package caravel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"busfab/internal/emit"
	"busfab/internal/patch"
)

// WrapperMarker delimits the managed region inside user_project_wrapper.v.
var WrapperMarker = patch.Marker{
	Begin: "// busfab:begin user-project",
	End:   "// busfab:end user-project",
}

// Project is an opened Caravel user-project directory.
type Project struct {
	Root string
}

// Open verifies the expected directory layout and returns the project.
func Open(root string) (*Project, error) {
	required := []string{
		filepath.Join(root, "verilog", "rtl"),
		filepath.Join(root, "openlane", "user_project_wrapper"),
	}
	for _, dir := range required {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("caravel: %s missing: not a Caravel user project", dir)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "verilog", "rtl", "user_project_wrapper.v")); err != nil {
		return nil, fmt.Errorf("caravel: user_project_wrapper.v not found under %s", root)
	}
	return &Project{Root: root}, nil
}

// wrapperPath returns the externally owned wrapper source file.
func (p *Project) wrapperPath() string {
	return filepath.Join(p.Root, "verilog", "rtl", "user_project_wrapper.v")
}

// configPath returns the OpenLane wrapper config file.
func (p *Project) configPath() string {
	return filepath.Join(p.Root, "openlane", "user_project_wrapper", "config.json")
}

// PatchWrapper writes the interconnect source as verilog/rtl/wb_bus.v and
// replaces the wrapper's managed region with the instantiation fragment.
// The previous wrapper content is kept beside it as a .bak file.
func (p *Project) PatchWrapper(a emit.Artifacts) error {
	busPath := filepath.Join(p.Root, "verilog", "rtl", emit.ModuleName+".v")
	if err := os.WriteFile(busPath, []byte(a.Interconnect), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", busPath, err)
	}

	wrapper := p.wrapperPath()
	existing, err := os.ReadFile(wrapper)
	if err != nil {
		return fmt.Errorf("read %s: %w", wrapper, err)
	}
	patched, err := patch.Apply(string(existing), a.WrapperInstance, WrapperMarker)
	if err != nil {
		return fmt.Errorf("patch %s: %w", wrapper, err)
	}
	if err := os.WriteFile(wrapper+".bak", existing, 0o644); err != nil {
		return fmt.Errorf("back up %s: %w", wrapper, err)
	}
	if err := os.WriteFile(wrapper, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", wrapper, err)
	}
	return nil
}

// UpdateOpenLaneConfig adds each module's blackbox source to the wrapper's
// config.json VERILOG_FILES_BLACKBOX list, deduplicated and preserving the
// entries already present. config.tcl-only projects are rejected: sentinel-
// free text patching of tcl has no safe idempotent form.
func (p *Project) UpdateOpenLaneConfig(moduleTypes []string) error {
	cfgPath := p.configPath()
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			if _, tclErr := os.Stat(filepath.Join(p.Root, "openlane", "user_project_wrapper", "config.tcl")); tclErr == nil {
				return fmt.Errorf("caravel: config.tcl projects are not supported; convert to config.json")
			}
		}
		return fmt.Errorf("read %s: %w", cfgPath, err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", cfgPath, err)
	}

	existing := blackboxList(cfg["VERILOG_FILES_BLACKBOX"])
	present := make(map[string]bool, len(existing))
	for _, f := range existing {
		present[f] = true
	}

	// One blackbox source per distinct IP type, sorted for stable output.
	types := append([]string(nil), moduleTypes...)
	sort.Strings(types)
	for _, t := range types {
		entry := "$::env(DESIGN_DIR)/../../verilog/rtl/" + t + "_WB.v"
		if !present[entry] {
			existing = append(existing, entry)
			present[entry] = true
		}
	}
	cfg["VERILOG_FILES_BLACKBOX"] = existing

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cfgPath, err)
	}
	out = append(out, '\n')
	if err := os.WriteFile(cfgPath, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}
	return nil
}

// blackboxList normalizes the VERILOG_FILES_BLACKBOX value, which OpenLane
// accepts as either a JSON list or a space-free single string.
func blackboxList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
