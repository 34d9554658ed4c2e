// Package frame records and submits the command sequence for one frame.
package frame

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/hexgrid/gpucore"
)

// ClearColor is the color the offscreen target is cleared to each frame.
var ClearColor = gpucore.Color{R: 237, G: 41, B: 57, A: 255}

// UniformSize is the size of the encoded Uniforms block.
const UniformSize = 16

// Uniforms is the fragment uniform block.
type Uniforms struct {
	Time        float32
	Padding     float32
	ResolutionX float32
	ResolutionY float32
}

// Bytes encodes the block as four little-endian float32 values.
func (u Uniforms) Bytes() []byte {
	buf := make([]byte, UniformSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(u.Time))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(u.Padding))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(u.ResolutionX))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(u.ResolutionY))
	return buf
}

// Resources is what the renderer reads from the resource registry.
type Resources interface {
	Size() (width, height uint32)
	Pipeline() gpucore.GraphicsPipelineID
	Framebuffer() gpucore.FramebufferID
	ColorTarget() gpucore.TextureID
	VertexBuffer() gpucore.BufferID
	FragmentBindings() []gpucore.TextureSamplerBinding
	Staging() gpucore.BufferID
}

// FlipRect returns the presentation rectangle that mirrors a w×h image vertically.
func FlipRect(w, h uint32) gpucore.Rect {
	return gpucore.Rect{X: 0, Y: int32(h), W: int32(w), H: -int32(h)}
}

// Renderer issues one draw of the fullscreen triangle per frame.
type Renderer struct {
	device  gpucore.Device
	res     Resources
	present gpucore.Rect
	frames  uint64
}

// New returns a renderer drawing with res on device.
func New(device gpucore.Device, res Resources) *Renderer {
	w, h := res.Size()
	return &Renderer{device: device, res: res, present: FlipRect(w, h)}
}

// Frames returns the number of frames submitted successfully.
func (r *Renderer) Frames() uint64 { return r.frames }

// Draw records and submits one frame. When capture is set, a copy of the
// color target into the staging buffer is recorded after the render pass
// and before the present.
func (r *Renderer) Draw(u Uniforms, capture bool) error {
	cb, err := r.device.AcquireCommandBuffer()
	if err != nil {
		return fmt.Errorf("frame: acquire command buffer: %w", err)
	}

	cb.BeginRenderPass(r.res.Framebuffer(), ClearColor)
	cb.BindGraphicsPipeline(r.res.Pipeline())
	cb.PushFragmentUniforms(u.Bytes())
	cb.BindVertexBuffers(0, gpucore.BufferBinding{Buffer: r.res.VertexBuffer(), Offset: 0})
	cb.BindFragmentSamplers(0, r.res.FragmentBindings()...)
	cb.DrawPrimitives(0, 1)
	cb.EndRenderPass()

	if capture {
		cb.CopyTextureToBuffer(r.res.ColorTarget(), r.res.Staging())
	}

	cb.QueuePresent(r.res.ColorTarget(), r.present, gpucore.FilterNearest)

	if err := r.device.Submit(cb); err != nil {
		return fmt.Errorf("frame: submit frame %d: %w", r.frames, err)
	}
	r.frames++
	if capture {
		slogger().Debug("frame: capture copy submitted", "frame", r.frames)
	}
	return nil
}
