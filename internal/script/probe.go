package script

import "regexp"

// Scripts export their capabilities as `exports.run` / `exports.check`
// assignments (or plain function declarations). The sandbox is the
// authority on what a built script actually exposes; this syntactic probe
// is what the registry consults when admitting a definition before any
// runtime is attached.
var (
	runExportRe   = regexp.MustCompile(`\bexports\.run\s*=|\bfunction\s+run\s*\(`)
	checkExportRe = regexp.MustCompile(`\bexports\.check\s*=|\bfunction\s+check\s*\(`)
)

// CapabilityHints reports which capabilities a script's source appears to
// declare.
type CapabilityHints struct {
	run   bool
	check bool
}

func (h CapabilityHints) HasRun() bool   { return h.run }
func (h CapabilityHints) HasCheck() bool { return h.check }

// ProbeCapabilities scans source text for declared run/check capabilities.
func ProbeCapabilities(code string) CapabilityHints {
	return CapabilityHints{
		run:   runExportRe.MatchString(code),
		check: checkExportRe.MatchString(code),
	}
}
