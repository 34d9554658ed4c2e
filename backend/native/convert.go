//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hexgrid/gpucore"
)

func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage
	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageVertex != 0 {
		result |= gputypes.BufferUsageVertex
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	return result
}

func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var result gputypes.TextureUsage
	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageSampled != 0 {
		result |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageColorTarget != 0 {
		result |= gputypes.TextureUsageRenderAttachment
	}
	return result
}

func convertTextureFormat(format gpucore.TextureFormat) (gputypes.TextureFormat, error) {
	switch format {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, nil
	default:
		return gputypes.TextureFormatRGBA8Unorm, fmt.Errorf("%w: texture format %d", ErrUnsupported, format)
	}
}

func convertFilter(f gpucore.Filter) gputypes.FilterMode {
	if f == gpucore.FilterLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func convertAddressMode(m gpucore.AddressMode) gputypes.AddressMode {
	switch m {
	case gpucore.AddressModeMirrorRepeat:
		return gputypes.AddressModeMirrorRepeat
	case gpucore.AddressModeClampToEdge:
		return gputypes.AddressModeClampToEdge
	default:
		return gputypes.AddressModeRepeat
	}
}

func convertLoadOp(op gpucore.LoadOp) gputypes.LoadOp {
	if op == gpucore.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	// DontCare has no WebGPU equivalent; clearing is the cheapest defined op.
	return gputypes.LoadOpClear
}

func convertStoreOp(op gpucore.StoreOp) gputypes.StoreOp {
	if op == gpucore.StoreOpDontCare {
		return gputypes.StoreOpDiscard
	}
	return gputypes.StoreOpStore
}

func convertCullMode(m gpucore.CullMode) gputypes.CullMode {
	switch m {
	case gpucore.CullModeFront:
		return gputypes.CullModeFront
	case gpucore.CullModeBack:
		return gputypes.CullModeBack
	default:
		return gputypes.CullModeNone
	}
}

func convertFrontFace(f gpucore.FrontFace) gputypes.FrontFace {
	if f == gpucore.FrontFaceClockwise {
		return gputypes.FrontFaceCW
	}
	return gputypes.FrontFaceCCW
}

func convertTopology(p gpucore.PrimitiveType) gputypes.PrimitiveTopology {
	switch p {
	case gpucore.PrimitiveTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case gpucore.PrimitiveLineList:
		return gputypes.PrimitiveTopologyLineList
	case gpucore.PrimitivePointList:
		return gputypes.PrimitiveTopologyPointList
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

func convertVertexFormat(f gpucore.VertexFormat) (gputypes.VertexFormat, error) {
	switch f {
	case gpucore.VertexFormatFloat2:
		return gputypes.VertexFormatFloat32x2, nil
	case gpucore.VertexFormatFloat3:
		return gputypes.VertexFormatFloat32x3, nil
	case gpucore.VertexFormatFloat4:
		return gputypes.VertexFormatFloat32x4, nil
	default:
		return gputypes.VertexFormatFloat32x4, fmt.Errorf("%w: vertex format %d", ErrUnsupported, f)
	}
}

func convertVertexInput(in gpucore.VertexInputState) ([]gputypes.VertexBufferLayout, error) {
	if in.Stride == 0 {
		return nil, nil
	}
	attrs := make([]gputypes.VertexAttribute, 0, len(in.Attributes))
	for _, a := range in.Attributes {
		f, err := convertVertexFormat(a.Format)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         f,
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: uint64(in.Stride),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}, nil
}

func convertColorTarget(format gputypes.TextureFormat, cb gpucore.ColorBlendState) gputypes.ColorTargetState {
	target := gputypes.ColorTargetState{
		Format:    format,
		WriteMask: gputypes.ColorWriteMask(cb.WriteMask),
	}
	if cb.Enabled {
		blend := gputypes.BlendStatePremultiplied()
		target.Blend = &blend
	}
	return target
}

// samplerDescriptor converts s. WebGPU has no LOD bias or border color and
// treats a compare function as a depth-comparison sampler, so those fields
// are not forwarded.
func samplerDescriptor(s *gpucore.SamplerDescriptor) *hal.SamplerDescriptor {
	return &hal.SamplerDescriptor{
		Label:        s.Label,
		AddressModeU: convertAddressMode(s.AddressU),
		AddressModeV: convertAddressMode(s.AddressV),
		AddressModeW: convertAddressMode(s.AddressW),
		MagFilter:    convertFilter(s.MagFilter),
		MinFilter:    convertFilter(s.MinFilter),
		MipmapFilter: convertFilter(s.MipmapFilter),
	}
}
