package gpucore

import (
	"fmt"
	"strings"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// SamplerID is an opaque handle to a texture sampler.
type SamplerID uint64

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// RenderPassID is an opaque handle to a render pass description.
type RenderPassID uint64

// FramebufferID is an opaque handle to a framebuffer.
type FramebufferID uint64

// GraphicsPipelineID is an opaque handle to a graphics pipeline.
type GraphicsPipelineID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be read back by the CPU.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 1

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 2

	// BufferUsageVertex indicates the buffer can be used as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 4
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm TextureFormat = iota + 1

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized unsigned integer.
	TextureFormatBGRA8Unorm
)

// BytesPerPixel returns the texel size of the format in bytes.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatBGRA8Unorm:
		return 4
	default:
		return 0
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageSampled indicates the texture can be bound for sampling.
	TextureUsageSampled TextureUsage = 1 << 2

	// TextureUsageColorTarget indicates the texture can be rendered into.
	TextureUsageColorTarget TextureUsage = 1 << 3
)

// ShaderStage identifies the pipeline stage a shader module is built for.
type ShaderStage uint8

// Shader stages.
const (
	ShaderStageVertex ShaderStage = iota + 1
	ShaderStageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", s)
	}
}

// Filter selects texel filtering for samplers and presentation.
type Filter uint8

// Filters.
const (
	FilterNearest Filter = iota
	FilterLinear
)

// AddressMode controls sampling outside [0, 1] texture coordinates.
type AddressMode uint8

// Address modes.
const (
	AddressModeRepeat AddressMode = iota
	AddressModeMirrorRepeat
	AddressModeClampToEdge
)

// CompareFunc is a depth or sampler comparison function.
type CompareFunc uint8

// Comparison functions.
const (
	CompareNever CompareFunc = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

// BorderColor is the color returned for clamp-to-border sampling.
type BorderColor uint8

// Border colors.
const (
	BorderColorTransparentBlack BorderColor = iota
	BorderColorOpaqueBlack
	BorderColorOpaqueWhite
)

// LoadOp is the render target load operation at the start of a pass.
type LoadOp uint8

// Load operations.
const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

// StoreOp is the render target store operation at the end of a pass.
type StoreOp uint8

// Store operations.
const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// PresentMode selects how finished frames are handed to the display.
type PresentMode uint8

// Present modes.
const (
	// PresentModeFIFO waits for vertical blank. Always supported.
	PresentModeFIFO PresentMode = iota
	PresentModeImmediate
	PresentModeMailbox
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeFIFO:
		return "fifo"
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	default:
		return fmt.Sprintf("PresentMode(%d)", m)
	}
}

// ParsePresentMode parses the lower-case name of a present mode.
func ParsePresentMode(s string) (PresentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo", "vsync":
		return PresentModeFIFO, nil
	case "immediate":
		return PresentModeImmediate, nil
	case "mailbox":
		return PresentModeMailbox, nil
	default:
		return PresentModeFIFO, fmt.Errorf("gpucore: unknown present mode %q", s)
	}
}

// Rect is an integer rectangle. A negative W or H mirrors the rectangle
// along that axis, which is how presentation expresses flips.
type Rect struct {
	X, Y int32
	W, H int32
}

// Color is an 8-bit RGBA color.
type Color struct {
	R, G, B, A uint8
}

// Float returns the color as normalized components in [0, 1].
func (c Color) Float() (r, g, b, a float64) {
	return float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255, float64(c.A) / 255
}

// CopyRowAlignment is the required alignment in bytes of each row when
// copying a texture into a buffer.
const CopyRowAlignment = 256

// AlignedBytesPerRow returns the padded row pitch used by texture-to-buffer
// copies of a texture with the given width and texel size.
func AlignedBytesPerRow(width, bytesPerPixel uint32) uint32 {
	row := width * bytesPerPixel
	return (row + CopyRowAlignment - 1) &^ (CopyRowAlignment - 1)
}

// ShaderModuleDescriptor describes a shader module.
type ShaderModuleDescriptor struct {
	Label string
	Stage ShaderStage
	SPIRV []uint32
}

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
}

// BufferDescriptor describes a GPU buffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// SamplerDescriptor describes a texture sampler.
type SamplerDescriptor struct {
	Label        string
	MinFilter    Filter
	MagFilter    Filter
	MipmapFilter Filter
	AddressU     AddressMode
	AddressV     AddressMode
	AddressW     AddressMode
	MipLodBias   float32
	MinLod       float32
	MaxLod       float32
	Compare      CompareFunc
	Border       BorderColor
}

// RenderPassDescriptor describes the single color attachment of a pass.
type RenderPassDescriptor struct {
	Label   string
	Format  TextureFormat
	LoadOp  LoadOp
	StoreOp StoreOp
}

// FramebufferDescriptor binds a color target texture to a render pass.
// Width and Height must equal the dimensions of ColorTarget.
type FramebufferDescriptor struct {
	Label       string
	RenderPass  RenderPassID
	ColorTarget TextureID
	Width       uint32
	Height      uint32
}
