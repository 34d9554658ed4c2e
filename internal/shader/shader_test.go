package shader

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func spirvHeader(extra ...uint32) []byte {
	words := append([]uint32{spirvMagic, 0x00010000, 0, 1, 0}, extra...)
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func TestDecodeSPIRV(t *testing.T) {
	words, err := DecodeSPIRV(spirvHeader(42))
	if err != nil {
		t.Fatalf("DecodeSPIRV() error = %v", err)
	}
	if len(words) != 6 || words[0] != spirvMagic || words[5] != 42 {
		t.Errorf("DecodeSPIRV() = %#x", words)
	}
}

func TestDecodeSPIRVRejects(t *testing.T) {
	bad := spirvHeader()
	bad[0] ^= 0xFF

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{0x03, 0x02, 0x23, 0x07}},
		{"unaligned", append(spirvHeader(), 0)},
		{"bad magic", bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSPIRV(tt.data); !errors.Is(err, ErrInvalidSPIRV) {
				t.Errorf("DecodeSPIRV() error = %v, want ErrInvalidSPIRV", err)
			}
		})
	}
}

func TestLoadSPV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frag.spv")
	if err := os.WriteFile(path, spirvHeader(7, 8), 0o600); err != nil {
		t.Fatal(err)
	}
	words, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(words) != 7 {
		t.Errorf("len(words) = %d, want 7", len(words))
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.wgsl")); err == nil {
		t.Error("missing file: expected error")
	}

	glsl := filepath.Join(dir, "shader.glsl")
	if err := os.WriteFile(glsl, []byte("void main() {}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(glsl); !errors.Is(err, ErrUnknownExtension) {
		t.Errorf("unknown extension: error = %v, want ErrUnknownExtension", err)
	}

	broken := filepath.Join(dir, "broken.wgsl")
	if err := os.WriteFile(broken, []byte("fn fs_main( -> {"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(broken); err == nil {
		t.Error("malformed WGSL: expected error")
	}
}

// TestAssetShadersCompile compiles the shaders shipped in assets/.
func TestAssetShadersCompile(t *testing.T) {
	for _, name := range []string{"passthrough.wgsl", "hexagon_grid.wgsl"} {
		t.Run(name, func(t *testing.T) {
			words, err := Load(filepath.Join("..", "..", "assets", name))
			if err != nil {
				if strings.Contains(err.Error(), "not yet implemented") || strings.Contains(err.Error(), "not supported") {
					t.Skipf("Skipping: naga feature not yet implemented: %v", err)
				}
				t.Fatalf("Load() error = %v", err)
			}
			if words[0] != spirvMagic {
				t.Errorf("magic = %#08x", words[0])
			}
		})
	}
}
