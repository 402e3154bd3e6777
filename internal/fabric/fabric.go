// Package fabric is the generation pipeline entry point: it runs the
// resource validators over a parsed configuration and a frozen catalog,
// pools their diagnostics, and renders artifacts only when the pool is
// empty.
//
// The pipeline is a pure, synchronous transform. There is no retry logic
// anywhere below this point: every failure is reported to the caller, who
// decides what to do — diagnostics are never silently swallowed.
package fabric

import (
	"strings"

	"busfab/internal/busconfig"
	"busfab/internal/catalog"
	"busfab/internal/emit"
	"busfab/internal/validate"
)

// ValidationError pools every finding from one run. The validators are
// exhaustive, so a single failed Generate names every conflict in the
// configuration, not just the first.
type ValidationError struct {
	Findings []error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration invalid:")
	for _, f := range e.Findings {
		b.WriteString("\n  " + f.Error())
	}
	return b.String()
}

// Unwrap exposes the individual findings to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error { return e.Findings }

// Generate validates cfg against cat and renders the artifacts. Address and
// binding validation run independently and their findings are pooled; on any
// finding the returned error is a *ValidationError and no emission is
// attempted.
func Generate(cfg *busconfig.Config, cat *catalog.Catalog) (emit.Artifacts, error) {
	addrs, addrErrs := validate.Addresses(cfg)
	io, irqs, bindErrs := validate.Bind(cfg, cat)

	findings := append(addrErrs, bindErrs...)
	if len(findings) > 0 {
		return emit.Artifacts{}, &ValidationError{Findings: findings}
	}

	return emit.Emit(cfg, addrs, io, irqs, cat), nil
}
