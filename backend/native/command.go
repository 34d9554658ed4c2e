//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hexgrid/gpucore"
)

// commandBuffer implements gpucore.CommandBuffer by encoding straight into
// a HAL command encoder. The first error is kept and returned by finish.
type commandBuffer struct {
	device  *Device
	encoder hal.CommandEncoder

	pass     hal.RenderPassEncoder
	inPass   bool
	pipeline *pipeline
	pairs    []gpucore.TextureSamplerBinding

	err  error
	done bool
}

func (c *commandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
		slogger().Debug("native: recording error", "err", err)
	}
}

func (c *commandBuffer) failf(format string, args ...any) {
	c.fail(fmt.Errorf("%w: "+format, append([]any{gpucore.ErrInvalidCommand}, args...)...))
}

func (c *commandBuffer) ok() bool { return c.err == nil && !c.done }

// BeginRenderPass starts a pass over fb's color target.
func (c *commandBuffer) BeginRenderPass(fb gpucore.FramebufferID, clear gpucore.Color) {
	if !c.ok() {
		return
	}
	if c.inPass {
		c.failf("BeginRenderPass inside a render pass")
		return
	}

	d := c.device
	d.mu.RLock()
	f, okFB := d.framebuffers[fb]
	var t *texture
	if okFB {
		t = d.textures[f.target]
	}
	d.mu.RUnlock()
	if !okFB || t == nil {
		c.fail(fmt.Errorf("%w: framebuffer %d", gpucore.ErrUnknownResource, fb))
		return
	}

	r, g, b, a := clear.Float()
	c.pass = c.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: f.pass.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     convertLoadOp(f.pass.LoadOp),
			StoreOp:    convertStoreOp(f.pass.StoreOp),
			ClearValue: gputypes.Color{R: r, G: g, B: b, A: a},
		}},
	})
	c.inPass = true
	c.pipeline = nil
	c.pairs = nil
}

// BindGraphicsPipeline sets the pipeline along with its viewport and scissor.
func (c *commandBuffer) BindGraphicsPipeline(id gpucore.GraphicsPipelineID) {
	if !c.ok() {
		return
	}
	if !c.inPass {
		c.failf("BindGraphicsPipeline outside a render pass")
		return
	}

	c.device.mu.RLock()
	p, found := c.device.pipelines[id]
	c.device.mu.RUnlock()
	if !found {
		c.fail(fmt.Errorf("%w: pipeline %d", gpucore.ErrUnknownResource, id))
		return
	}

	c.pass.SetPipeline(p.pipe)
	vp := p.desc.Viewport.Viewport
	c.pass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	sc := p.desc.Viewport.Scissor
	if sc.W > 0 && sc.H > 0 {
		c.pass.SetScissorRect(uint32(max(sc.X, 0)), uint32(max(sc.Y, 0)), uint32(sc.W), uint32(sc.H))
	}
	c.pipeline = p
	c.pairs = nil
}

// PushFragmentUniforms writes data into the bound pipeline's uniform buffer.
func (c *commandBuffer) PushFragmentUniforms(data []byte) {
	if !c.ok() {
		return
	}
	if c.pipeline == nil {
		c.failf("PushFragmentUniforms without a pipeline")
		return
	}
	if uint64(len(data)) != c.pipeline.uniformSize {
		c.failf("uniform block is %d bytes, pipeline %q expects %d",
			len(data), c.pipeline.desc.Label, c.pipeline.uniformSize)
		return
	}

	d := c.device
	d.queueMu.Lock()
	err := d.queue.WriteBuffer(c.pipeline.uniforms, 0, data)
	d.queueMu.Unlock()
	if err != nil {
		c.fail(fmt.Errorf("native: write uniforms for %q: %w", c.pipeline.desc.Label, err))
	}
}

// BindVertexBuffers binds vertex buffers starting at slot first.
func (c *commandBuffer) BindVertexBuffers(first uint32, bindings ...gpucore.BufferBinding) {
	if !c.ok() {
		return
	}
	if !c.inPass {
		c.failf("BindVertexBuffers outside a render pass")
		return
	}
	for i, b := range bindings {
		c.device.mu.RLock()
		buf, found := c.device.buffers[b.Buffer]
		c.device.mu.RUnlock()
		if !found {
			c.fail(fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, b.Buffer))
			return
		}
		c.pass.SetVertexBuffer(first+uint32(i), buf.buf, b.Offset)
	}
}

// BindFragmentSamplers records texture/sampler pairs; the bind group is
// resolved at the next draw.
func (c *commandBuffer) BindFragmentSamplers(first uint32, bindings ...gpucore.TextureSamplerBinding) {
	if !c.ok() {
		return
	}
	if c.pipeline == nil {
		c.failf("BindFragmentSamplers without a pipeline")
		return
	}
	need := int(first) + len(bindings)
	if len(c.pairs) < need {
		c.pairs = append(c.pairs, make([]gpucore.TextureSamplerBinding, need-len(c.pairs))...)
	}
	copy(c.pairs[first:], bindings)
}

// DrawPrimitives draws primitiveCount primitives of the bound topology.
func (c *commandBuffer) DrawPrimitives(vertexStart, primitiveCount uint32) {
	if !c.ok() {
		return
	}
	if c.pipeline == nil {
		c.failf("DrawPrimitives without a pipeline")
		return
	}

	group, err := c.device.bindGroup(c.pipeline, c.pairs)
	if err != nil {
		c.fail(err)
		return
	}
	c.pass.SetBindGroup(0, group, nil)
	c.pass.Draw(c.pipeline.desc.Primitive.VerticesFor(primitiveCount), 1, vertexStart, 0)
}

// EndRenderPass ends the current pass.
func (c *commandBuffer) EndRenderPass() {
	if !c.ok() {
		return
	}
	if !c.inPass {
		c.failf("EndRenderPass without a render pass")
		return
	}
	c.pass.End()
	c.pass = nil
	c.inPass = false
	c.pipeline = nil
}

// CopyTextureToBuffer copies src into dst with rows padded to
// gpucore.AlignedBytesPerRow.
func (c *commandBuffer) CopyTextureToBuffer(src gpucore.TextureID, dst gpucore.BufferID) {
	if !c.ok() {
		return
	}
	if c.inPass {
		c.failf("CopyTextureToBuffer inside a render pass")
		return
	}

	d := c.device
	d.mu.RLock()
	t, okT := d.textures[src]
	b, okB := d.buffers[dst]
	d.mu.RUnlock()
	if !okT {
		c.fail(fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, src))
		return
	}
	if !okB {
		c.fail(fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, dst))
		return
	}

	w, h := t.desc.Width, t.desc.Height
	pitch := gpucore.AlignedBytesPerRow(w, t.desc.Format.BytesPerPixel())
	if need := uint64(pitch) * uint64(h); b.desc.Size < need {
		c.failf("buffer %q holds %d bytes, copy needs %d", b.desc.Label, b.desc.Size, need)
		return
	}

	// A color target stays in attachment layout between passes; the copy
	// needs it as a transfer source.
	c.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	c.encoder.CopyTextureToBuffer(t.tex, b.buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	c.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
}

// QueuePresent blits src onto the current present target. Without a
// target (headless) it only validates src.
func (c *commandBuffer) QueuePresent(src gpucore.TextureID, dst gpucore.Rect, filter gpucore.Filter) {
	if !c.ok() {
		return
	}
	if c.inPass {
		c.failf("QueuePresent inside a render pass")
		return
	}
	if err := c.device.present.encode(c.encoder, src, dst, filter); err != nil {
		c.fail(err)
	}
}

// finish ends encoding. On a recording error the encoder is discarded and
// destroyed and the error returned.
func (c *commandBuffer) finish() (hal.CommandBuffer, error) {
	if c.done {
		return nil, fmt.Errorf("%w: command buffer already submitted", gpucore.ErrInvalidCommand)
	}
	c.done = true

	if c.inPass {
		c.pass.End()
		c.inPass = false
		if c.err == nil {
			c.err = fmt.Errorf("%w: render pass not ended", gpucore.ErrInvalidCommand)
		}
	}
	if c.err != nil {
		c.encoder.DiscardEncoding()
		c.encoder.Destroy()
		return nil, c.err
	}

	cb, err := c.encoder.EndEncoding()
	if err != nil {
		c.encoder.Destroy()
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	return cb, nil
}
