package wgpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// hasEntryPoint reports whether the WGSL source declares a function with
// the given name.
func hasEntryPoint(source, name string) bool {
	for rest := source; ; {
		i := strings.Index(rest, "fn ")
		if i < 0 {
			return false
		}
		rest = rest[i+len("fn "):]
		if strings.HasPrefix(rest, name) {
			after := rest[len(name):]
			if strings.HasPrefix(strings.TrimLeft(after, " \t"), "(") {
				return true
			}
		}
	}
}
