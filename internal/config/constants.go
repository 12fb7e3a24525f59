package config

// TemplateFileExt is the canonical template source extension.
const TemplateFileExt = ".stl"

// TemplateFileExtensions are all recognized template source extensions.
var TemplateFileExtensions = []string{".stl", ".stencil", ".html.stl"}

// BytecodeFileExt is the extension for compiled template images.
const BytecodeFileExt = ".stc"

// SidecarFileExt is the extension for debug source-map sidecars.
const SidecarFileExt = ".stcd"

// MaxLocals caps the number of local slots per frame. It also selects the
// width of local-index operands in the bytecode: 1 byte while MaxLocals is
// at most 256, 2 bytes otherwise. The compiler and the VM must agree on
// this value or every GET_LOCAL/SET_LOCAL/INCR decode is garbage.
const MaxLocals = 256

// LocalIndexWidth is the operand width in bytes for local-slot indices:
// 1 while MaxLocals is at most 256, 2 otherwise. Change it together with
// MaxLocals.
const LocalIndexWidth = 1

// MaxCallFrames is the fixed size of the VM's call-frame array.
const MaxCallFrames = 255

// InitialCodeSize and InitialDataSize are compile-side buffer hints.
const (
	InitialCodeSize = 512
	InitialDataSize = 512
)

// DefaultMaxArenaBytes bounds per-run heap allocation. Exceeding it raises
// OutOfMemory inside the VM.
const DefaultMaxArenaBytes = 64 << 20

// DeduplicateStringLiterals controls whether the image writer reuses the
// data-section offset of an identical, previously written string literal.
const DeduplicateStringLiterals = true

// EscapeByDefault controls whether <%= %> output is HTML-escaped when the
// caller does not say otherwise.
const EscapeByDefault = false

// DebugLevel selects how much debug information the compiler emits.
type DebugLevel int

const (
	// DebugNone emits no debug information.
	DebugNone DebugLevel = iota
	// DebugMinimal emits DEBUG markers at statement boundaries.
	DebugMinimal
	// DebugFull additionally writes a source-map sidecar next to the image.
	DebugFull
)

func (d DebugLevel) String() string {
	switch d {
	case DebugMinimal:
		return "minimal"
	case DebugFull:
		return "full"
	default:
		return "none"
	}
}

// ParseDebugLevel maps a config string to a DebugLevel. Unknown values fall
// back to DebugNone.
func ParseDebugLevel(s string) DebugLevel {
	switch s {
	case "minimal":
		return DebugMinimal
	case "full":
		return DebugFull
	default:
		return DebugNone
	}
}
