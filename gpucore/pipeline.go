package gpucore

import (
	"errors"
	"fmt"
)

// ColorWriteMask selects which color channels a pipeline writes.
type ColorWriteMask uint8

// Color write masks.
const (
	ColorWriteRed   ColorWriteMask = 1 << 0
	ColorWriteGreen ColorWriteMask = 1 << 1
	ColorWriteBlue  ColorWriteMask = 1 << 2
	ColorWriteAlpha ColorWriteMask = 1 << 3
	ColorWriteAll                  = ColorWriteRed | ColorWriteGreen | ColorWriteBlue | ColorWriteAlpha
)

// ColorBlendState configures blending for the color attachment.
// When Enabled is false, fragments overwrite the target.
type ColorBlendState struct {
	Enabled   bool
	WriteMask ColorWriteMask
}

// DepthStencilState configures depth and stencil testing.
type DepthStencilState struct {
	DepthTest       bool
	DepthWrite      bool
	DepthCompare    CompareFunc
	DepthBoundsTest bool
	MinDepthBounds  float32
	MaxDepthBounds  float32
	StencilTest     bool
}

// ShaderStageState selects a shader module and its entry point.
type ShaderStageState struct {
	Module     ShaderModuleID
	EntryPoint string
}

// MultisampleState configures multisampling.
type MultisampleState struct {
	Count uint32
	Mask  uint32
}

// PipelineLayout describes the resources shaders expect.
type PipelineLayout struct {
	VertexSamplerCount   uint32
	FragmentSamplerCount uint32
	// FragmentUniformSize is the size in bytes of the fragment uniform block.
	FragmentUniformSize uint32
}

// FillMode is the polygon rasterization mode.
type FillMode uint8

// Fill modes.
const (
	FillModeFill FillMode = iota
	FillModeLine
)

// CullMode selects which faces are discarded.
type CullMode uint8

// Cull modes.
const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

// FrontFace selects the winding order of front-facing triangles.
type FrontFace uint8

// Winding orders.
const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

// RasterizerState configures primitive rasterization.
type RasterizerState struct {
	FillMode  FillMode
	CullMode  CullMode
	FrontFace FrontFace
	LineWidth float32
	DepthBias bool
}

// PrimitiveType is the topology of the vertex stream.
type PrimitiveType uint8

// Primitive types.
const (
	PrimitiveTriangleList PrimitiveType = iota
	PrimitiveTriangleStrip
	PrimitiveLineList
	PrimitivePointList
)

// VerticesFor returns how many vertices n primitives consume.
func (p PrimitiveType) VerticesFor(n uint32) uint32 {
	switch p {
	case PrimitiveTriangleList:
		return n * 3
	case PrimitiveTriangleStrip:
		if n == 0 {
			return 0
		}
		return n + 2
	case PrimitiveLineList:
		return n * 2
	default:
		return n
	}
}

// VertexFormat is the format of a single vertex attribute.
type VertexFormat uint8

// Vertex formats.
const (
	VertexFormatFloat2 VertexFormat = iota + 1
	VertexFormatFloat3
	VertexFormatFloat4
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFormatFloat2:
		return 8
	case VertexFormatFloat3:
		return 12
	case VertexFormatFloat4:
		return 16
	default:
		return 0
	}
}

// VertexAttribute places one attribute inside a vertex.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

// VertexInputState describes the layout of the single vertex buffer.
type VertexInputState struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// Viewport is the floating-point viewport transform.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// ViewportState combines the viewport and scissor rectangle.
type ViewportState struct {
	Viewport Viewport
	Scissor  Rect
}

// GraphicsPipelineDescriptor aggregates every sub-state of a graphics pipeline.
type GraphicsPipelineDescriptor struct {
	Label        string
	ColorBlend   ColorBlendState
	DepthStencil DepthStencilState
	Vertex       ShaderStageState
	Fragment     ShaderStageState
	Multisample  MultisampleState
	Layout       PipelineLayout
	Rasterizer   RasterizerState
	Primitive    PrimitiveType
	VertexInput  VertexInputState
	Viewport     ViewportState
	RenderPass   RenderPassID
}

// Pipeline descriptor errors.
var (
	// ErrMissingShader is returned when a pipeline lacks a vertex or fragment module.
	ErrMissingShader = errors.New("gpucore: pipeline shader module not set")

	// ErrInvalidVertexLayout is returned when an attribute does not fit in the stride.
	ErrInvalidVertexLayout = errors.New("gpucore: vertex attribute outside stride")
)

// Validate checks the descriptor for internal consistency.
func (d *GraphicsPipelineDescriptor) Validate() error {
	if d.Vertex.Module == InvalidID || d.Fragment.Module == InvalidID {
		return ErrMissingShader
	}
	if d.RenderPass == InvalidID {
		return fmt.Errorf("gpucore: pipeline %q has no render pass", d.Label)
	}
	for _, a := range d.VertexInput.Attributes {
		if a.Offset+a.Format.Size() > d.VertexInput.Stride {
			return fmt.Errorf("%w: location %d", ErrInvalidVertexLayout, a.Location)
		}
	}
	if d.Multisample.Count == 0 {
		return fmt.Errorf("gpucore: pipeline %q has zero sample count", d.Label)
	}
	return nil
}

// ColorBlendDisabled returns a blend state that writes all channels unblended.
func ColorBlendDisabled() ColorBlendState {
	return ColorBlendState{Enabled: false, WriteMask: ColorWriteAll}
}

// DepthStencilDisabled returns a state with depth and stencil testing off
// and depth bounds spanning [0, 1].
func DepthStencilDisabled() DepthStencilState {
	return DepthStencilState{
		DepthCompare:   CompareAlways,
		MinDepthBounds: 0,
		MaxDepthBounds: 1,
	}
}

// RasterizerCullCounterClockwise returns a filled rasterizer state that
// discards counter-clockwise (back) faces, treating clockwise as front.
func RasterizerCullCounterClockwise() RasterizerState {
	return RasterizerState{
		FillMode:  FillModeFill,
		CullMode:  CullModeBack,
		FrontFace: FrontFaceClockwise,
		LineWidth: 1,
	}
}

// MultisampleOff returns single-sample state with every sample enabled.
func MultisampleOff() MultisampleState {
	return MultisampleState{Count: 1, Mask: 0xFFFFFFFF}
}

// ViewportFull returns a viewport and scissor covering a w×h target.
func ViewportFull(w, h uint32) ViewportState {
	return ViewportState{
		Viewport: Viewport{Width: float32(w), Height: float32(h), MinDepth: 0, MaxDepth: 1},
		Scissor:  Rect{W: int32(w), H: int32(h)},
	}
}

// SamplerLinearWrap returns a trilinear, repeating sampler pinned to mip level 1.
func SamplerLinearWrap() SamplerDescriptor {
	return SamplerDescriptor{
		MinFilter:    FilterLinear,
		MagFilter:    FilterLinear,
		MipmapFilter: FilterLinear,
		AddressU:     AddressModeRepeat,
		AddressV:     AddressModeRepeat,
		AddressW:     AddressModeRepeat,
		MipLodBias:   1,
		MinLod:       1,
		MaxLod:       1,
		Compare:      CompareNever,
		Border:       BorderColorOpaqueBlack,
	}
}
