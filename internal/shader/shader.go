// Package shader loads shader programs as SPIR-V words.
//
// WGSL sources are compiled with naga; precompiled SPIR-V binaries are
// read as little-endian 32-bit words and checked for the SPIR-V magic.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Shader errors.
var (
	// ErrInvalidSPIRV is returned for binaries that are not SPIR-V modules.
	ErrInvalidSPIRV = errors.New("shader: invalid SPIR-V")

	// ErrUnknownExtension is returned when the file type cannot be inferred.
	ErrUnknownExtension = errors.New("shader: unknown file extension")
)

// Load reads the shader at path. Files ending in .wgsl are compiled,
// files ending in .spv are read as SPIR-V.
func Load(path string) ([]uint32, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("shader: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wgsl":
		words, err := CompileWGSL(string(data))
		if err != nil {
			return nil, fmt.Errorf("shader: %s: %w", path, err)
		}
		return words, nil
	case ".spv":
		words, err := DecodeSPIRV(data)
		if err != nil {
			return nil, fmt.Errorf("shader: %s: %w", path, err)
		}
		return words, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExtension, path)
	}
}

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	return DecodeSPIRV(spirvBytes)
}

// DecodeSPIRV converts a SPIR-V binary to words, validating length and magic.
func DecodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(data))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}
