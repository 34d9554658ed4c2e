// Package gputest provides an in-memory gpucore.Device for tests.
//
// The device keeps resource contents on the CPU and executes submitted
// command buffers by replaying them: a render pass clears its color target,
// a texture-to-buffer copy moves texels with padded rows. Every submission
// is kept so tests can assert the exact command order.
package gputest

import (
	"fmt"
	"sync"

	"github.com/gogpu/hexgrid/gpucore"
)

// Command operation names.
const (
	OpBeginRenderPass      = "BeginRenderPass"
	OpBindGraphicsPipeline = "BindGraphicsPipeline"
	OpPushFragmentUniforms = "PushFragmentUniforms"
	OpBindVertexBuffers    = "BindVertexBuffers"
	OpBindFragmentSamplers = "BindFragmentSamplers"
	OpDrawPrimitives       = "DrawPrimitives"
	OpEndRenderPass        = "EndRenderPass"
	OpCopyTextureToBuffer  = "CopyTextureToBuffer"
	OpQueuePresent         = "QueuePresent"
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op             string
	Framebuffer    gpucore.FramebufferID
	Clear          gpucore.Color
	Pipeline       gpucore.GraphicsPipelineID
	Data           []byte
	First          uint32
	Buffers        []gpucore.BufferBinding
	Samplers       []gpucore.TextureSamplerBinding
	VertexStart    uint32
	PrimitiveCount uint32
	Texture        gpucore.TextureID
	Buffer         gpucore.BufferID
	Rect           gpucore.Rect
	Filter         gpucore.Filter
}

type texture struct {
	desc gpucore.TextureDescriptor
	data []byte
}

type buffer struct {
	desc gpucore.BufferDescriptor
	data []byte
}

// Device is a recording gpucore.Device. The zero value is not usable; call New.
type Device struct {
	mu     sync.Mutex
	nextID uint64
	closed bool

	shaders      map[gpucore.ShaderModuleID]gpucore.ShaderModuleDescriptor
	textures     map[gpucore.TextureID]*texture
	samplers     map[gpucore.SamplerID]gpucore.SamplerDescriptor
	buffers      map[gpucore.BufferID]*buffer
	passes       map[gpucore.RenderPassID]gpucore.RenderPassDescriptor
	framebuffers map[gpucore.FramebufferID]gpucore.FramebufferDescriptor
	pipelines    map[gpucore.GraphicsPipelineID]gpucore.GraphicsPipelineDescriptor

	created   []string
	destroyed []string
	submitted [][]Command
	failures  map[string]error
	waits     int
	waitHook  func()
}

// New returns an empty recording device.
func New() *Device {
	return &Device{
		nextID:       1,
		shaders:      make(map[gpucore.ShaderModuleID]gpucore.ShaderModuleDescriptor),
		textures:     make(map[gpucore.TextureID]*texture),
		samplers:     make(map[gpucore.SamplerID]gpucore.SamplerDescriptor),
		buffers:      make(map[gpucore.BufferID]*buffer),
		passes:       make(map[gpucore.RenderPassID]gpucore.RenderPassDescriptor),
		framebuffers: make(map[gpucore.FramebufferID]gpucore.FramebufferDescriptor),
		pipelines:    make(map[gpucore.GraphicsPipelineID]gpucore.GraphicsPipelineDescriptor),
		failures:     make(map[string]error),
	}
}

// FailNext makes the next call to the named Device method return err.
func (d *Device) FailNext(method string, err error) {
	d.mu.Lock()
	d.failures[method] = err
	d.mu.Unlock()
}

// SetWaitHook installs fn to run at the start of every Wait call, outside
// the device lock. Tests use it to hold the capture worker.
func (d *Device) SetWaitHook(fn func()) {
	d.mu.Lock()
	d.waitHook = fn
	d.mu.Unlock()
}

// Submissions returns a copy of every submitted command list in order.
func (d *Device) Submissions() [][]Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]Command, len(d.submitted))
	copy(out, d.submitted)
	return out
}

// Created returns "kind:label" for every resource created, in order.
func (d *Device) Created() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.created...)
}

// Destroyed returns "kind:label" for every resource destroyed, in order.
func (d *Device) Destroyed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.destroyed...)
}

// Live returns the number of resources not yet destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shaders) + len(d.textures) + len(d.samplers) + len(d.buffers) +
		len(d.passes) + len(d.framebuffers) + len(d.pipelines)
}

// Waits returns how many times Wait has completed.
func (d *Device) Waits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waits
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// TextureData returns a copy of a texture's texels.
func (d *Device) TextureData(id gpucore.TextureID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[id]; ok {
		return append([]byte(nil), t.data...)
	}
	return nil
}

// Pipeline returns the descriptor a pipeline was created with.
func (d *Device) Pipeline(id gpucore.GraphicsPipelineID) (gpucore.GraphicsPipelineDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[id]
	return p, ok
}

// Sampler returns the descriptor a sampler was created with.
func (d *Device) Sampler(id gpucore.SamplerID) (gpucore.SamplerDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.samplers[id]
	return s, ok
}

// BufferSize returns the size of a live buffer, or 0.
func (d *Device) BufferSize(id gpucore.BufferID) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		return b.desc.Size
	}
	return 0
}

// check returns an injected failure or ErrDeviceClosed. Caller holds d.mu.
func (d *Device) check(method string) error {
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	if err, ok := d.failures[method]; ok {
		delete(d.failures, method)
		return err
	}
	return nil
}

func (d *Device) newID(kind, label string) uint64 {
	id := d.nextID
	d.nextID++
	d.created = append(d.created, kind+":"+label)
	return id
}

func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDescriptor) (gpucore.ShaderModuleID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("CreateShaderModule"); err != nil {
		return gpucore.InvalidID, err
	}
	if len(desc.SPIRV) == 0 {
		return gpucore.InvalidID, fmt.Errorf("gputest: empty SPIR-V for %q", desc.Label)
	}
	id := gpucore.ShaderModuleID(d.newID("shader", desc.Label))
	d.shaders[id] = *desc
	return id, nil
}

func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.shaders[id]; ok {
		delete(d.shaders, id)
		d.destroyed = append(d.destroyed, "shader:"+s.Label)
	}
}

func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("CreateTexture"); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("gputest: zero-sized texture %q", desc.Label)
	}
	id := gpucore.TextureID(d.newID("texture", desc.Label))
	d.textures[id] = &texture{
		desc: *desc,
		data: make([]byte, int(desc.Width)*int(desc.Height)*int(desc.Format.BytesPerPixel())),
	}
	return id, nil
}

func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("WriteTexture"); err != nil {
		return err
	}
	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, id)
	}
	if len(data) != len(t.data) {
		return fmt.Errorf("gputest: texture %q expects %d bytes, got %d", t.desc.Label, len(t.data), len(data))
	}
	copy(t.data, data)
	return nil
}

func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[id]; ok {
		delete(d.textures, id)
		d.destroyed = append(d.destroyed, "texture:"+t.desc.Label)
	}
}

func (d *Device) CreateSampler(desc *gpucore.SamplerDescriptor) (gpucore.SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("CreateSampler"); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.SamplerID(d.newID("sampler", desc.Label))
	d.samplers[id] = *desc
	return id, nil
}

func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.samplers[id]; ok {
		delete(d.samplers, id)
		d.destroyed = append(d.destroyed, "sampler:"+s.Label)
	}
}

func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("CreateBuffer"); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("gputest: zero-sized buffer %q", desc.Label)
	}
	id := gpucore.BufferID(d.newID("buffer", desc.Label))
	d.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size)}
	return id, nil
}

func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("WriteBuffer"); err != nil {
		return err
	}
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("gputest: write past end of buffer %q", b.desc.Label)
	}
	copy(b.data[offset:], data)
	return nil
}

func (d *Device) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("ReadBuffer"); err != nil {
		return err
	}
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if b.desc.Usage&gpucore.BufferUsageMapRead == 0 {
		return fmt.Errorf("gputest: buffer %q is not readable", b.desc.Label)
	}
	if offset+uint64(len(dst)) > b.desc.Size {
		return fmt.Errorf("gputest: read past end of buffer %q", b.desc.Label)
	}
	copy(dst, b.data[offset:])
	return nil
}

func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		delete(d.buffers, id)
		d.destroyed = append(d.destroyed, "buffer:"+b.desc.Label)
	}
}

func (d *Device) CreateRenderPass(desc *gpucore.RenderPassDescriptor) (gpucore.RenderPassID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("CreateRenderPass"); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.RenderPassID(d.newID("renderpass", desc.Label))
	d.passes[id] = *desc
	return id, nil
}

func (d *Device) DestroyRenderPass(id gpucore.RenderPassID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.passes[id]; ok {
		delete(d.passes, id)
		d.destroyed = append(d.destroyed, "renderpass:"+p.Label)
	}
}

func (d *Device) CreateFramebuffer(desc *gpucore.FramebufferDescriptor) (gpucore.FramebufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("CreateFramebuffer"); err != nil {
		return gpucore.InvalidID, err
	}
	if _, ok := d.passes[desc.RenderPass]; !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: render pass %d", gpucore.ErrUnknownResource, desc.RenderPass)
	}
	t, ok := d.textures[desc.ColorTarget]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, desc.ColorTarget)
	}
	if t.desc.Width != desc.Width || t.desc.Height != desc.Height {
		return gpucore.InvalidID, fmt.Errorf("%w: framebuffer %dx%d, target %dx%d",
			gpucore.ErrDimensionMismatch, desc.Width, desc.Height, t.desc.Width, t.desc.Height)
	}
	id := gpucore.FramebufferID(d.newID("framebuffer", desc.Label))
	d.framebuffers[id] = *desc
	return id, nil
}

func (d *Device) DestroyFramebuffer(id gpucore.FramebufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.framebuffers[id]; ok {
		delete(d.framebuffers, id)
		d.destroyed = append(d.destroyed, "framebuffer:"+f.Label)
	}
}

func (d *Device) CreateGraphicsPipeline(desc *gpucore.GraphicsPipelineDescriptor) (gpucore.GraphicsPipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("CreateGraphicsPipeline"); err != nil {
		return gpucore.InvalidID, err
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	for _, m := range []gpucore.ShaderModuleID{desc.Vertex.Module, desc.Fragment.Module} {
		if _, ok := d.shaders[m]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, m)
		}
	}
	id := gpucore.GraphicsPipelineID(d.newID("pipeline", desc.Label))
	d.pipelines[id] = *desc
	return id, nil
}

func (d *Device) DestroyGraphicsPipeline(id gpucore.GraphicsPipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[id]; ok {
		delete(d.pipelines, id)
		d.destroyed = append(d.destroyed, "pipeline:"+p.Label)
	}
}

func (d *Device) AcquireCommandBuffer() (gpucore.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("AcquireCommandBuffer"); err != nil {
		return nil, err
	}
	return &CommandBuffer{device: d}, nil
}

// Submit replays the command buffer against the in-memory resources.
func (d *Device) Submit(cb gpucore.CommandBuffer) error {
	c, ok := cb.(*CommandBuffer)
	if !ok || c.device != d {
		return fmt.Errorf("%w: foreign command buffer", gpucore.ErrInvalidCommand)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.submitted {
		return fmt.Errorf("%w: command buffer submitted twice", gpucore.ErrInvalidCommand)
	}
	c.submitted = true
	if err := d.check("Submit"); err != nil {
		return err
	}
	if err := d.replay(c.commands); err != nil {
		return err
	}
	d.submitted = append(d.submitted, c.commands)
	return nil
}

// replay executes commands. Caller holds d.mu.
func (d *Device) replay(cmds []Command) error {
	inPass := false
	for i, cmd := range cmds {
		switch cmd.Op {
		case OpBeginRenderPass:
			if inPass {
				return fmt.Errorf("%w: nested render pass at %d", gpucore.ErrInvalidCommand, i)
			}
			fb, ok := d.framebuffers[cmd.Framebuffer]
			if !ok {
				return fmt.Errorf("%w: framebuffer %d", gpucore.ErrUnknownResource, cmd.Framebuffer)
			}
			t, ok := d.textures[fb.ColorTarget]
			if !ok {
				return fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, fb.ColorTarget)
			}
			fill(t.data, cmd.Clear)
			inPass = true
		case OpEndRenderPass:
			if !inPass {
				return fmt.Errorf("%w: end without begin at %d", gpucore.ErrInvalidCommand, i)
			}
			inPass = false
		case OpBindGraphicsPipeline, OpPushFragmentUniforms, OpBindVertexBuffers,
			OpBindFragmentSamplers, OpDrawPrimitives:
			if !inPass {
				return fmt.Errorf("%w: %s outside render pass", gpucore.ErrInvalidCommand, cmd.Op)
			}
		case OpCopyTextureToBuffer:
			if inPass {
				return fmt.Errorf("%w: copy inside render pass", gpucore.ErrInvalidCommand)
			}
			if err := d.copyTextureToBuffer(cmd.Texture, cmd.Buffer); err != nil {
				return err
			}
		case OpQueuePresent:
			if inPass {
				return fmt.Errorf("%w: present inside render pass", gpucore.ErrInvalidCommand)
			}
		}
	}
	if inPass {
		return fmt.Errorf("%w: render pass not ended", gpucore.ErrInvalidCommand)
	}
	return nil
}

func (d *Device) copyTextureToBuffer(src gpucore.TextureID, dst gpucore.BufferID) error {
	t, ok := d.textures[src]
	if !ok {
		return fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, src)
	}
	b, ok := d.buffers[dst]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, dst)
	}
	bpp := t.desc.Format.BytesPerPixel()
	row := int(t.desc.Width * bpp)
	pitch := int(gpucore.AlignedBytesPerRow(t.desc.Width, bpp))
	if uint64(pitch)*uint64(t.desc.Height) > b.desc.Size {
		return fmt.Errorf("gputest: buffer %q too small for texture %q", b.desc.Label, t.desc.Label)
	}
	for y := 0; y < int(t.desc.Height); y++ {
		copy(b.data[y*pitch:y*pitch+row], t.data[y*row:(y+1)*row])
	}
	return nil
}

func fill(dst []byte, c gpucore.Color) {
	for i := 0; i+3 < len(dst); i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = c.R, c.G, c.B, c.A
	}
}

// Wait runs the wait hook and returns. Submissions complete synchronously.
func (d *Device) Wait() error {
	d.mu.Lock()
	hook := d.waitHook
	if err := d.check("Wait"); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	if hook != nil {
		hook()
	}

	d.mu.Lock()
	d.waits++
	d.mu.Unlock()
	return nil
}

// Close marks the device closed. Later calls fail with ErrDeviceClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// CommandBuffer records commands for a gputest Device.
type CommandBuffer struct {
	device    *Device
	commands  []Command
	submitted bool
}

// Commands returns the commands recorded so far.
func (c *CommandBuffer) Commands() []Command { return c.commands }

func (c *CommandBuffer) add(cmd Command) { c.commands = append(c.commands, cmd) }

func (c *CommandBuffer) BeginRenderPass(fb gpucore.FramebufferID, clear gpucore.Color) {
	c.add(Command{Op: OpBeginRenderPass, Framebuffer: fb, Clear: clear})
}

func (c *CommandBuffer) BindGraphicsPipeline(p gpucore.GraphicsPipelineID) {
	c.add(Command{Op: OpBindGraphicsPipeline, Pipeline: p})
}

func (c *CommandBuffer) PushFragmentUniforms(data []byte) {
	c.add(Command{Op: OpPushFragmentUniforms, Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, bindings ...gpucore.BufferBinding) {
	c.add(Command{Op: OpBindVertexBuffers, First: first, Buffers: append([]gpucore.BufferBinding(nil), bindings...)})
}

func (c *CommandBuffer) BindFragmentSamplers(first uint32, bindings ...gpucore.TextureSamplerBinding) {
	c.add(Command{Op: OpBindFragmentSamplers, First: first, Samplers: append([]gpucore.TextureSamplerBinding(nil), bindings...)})
}

func (c *CommandBuffer) DrawPrimitives(vertexStart, primitiveCount uint32) {
	c.add(Command{Op: OpDrawPrimitives, VertexStart: vertexStart, PrimitiveCount: primitiveCount})
}

func (c *CommandBuffer) EndRenderPass() {
	c.add(Command{Op: OpEndRenderPass})
}

func (c *CommandBuffer) CopyTextureToBuffer(src gpucore.TextureID, dst gpucore.BufferID) {
	c.add(Command{Op: OpCopyTextureToBuffer, Texture: src, Buffer: dst})
}

func (c *CommandBuffer) QueuePresent(src gpucore.TextureID, dst gpucore.Rect, filter gpucore.Filter) {
	c.add(Command{Op: OpQueuePresent, Texture: src, Rect: dst, Filter: filter})
}

var (
	_ gpucore.Device        = (*Device)(nil)
	_ gpucore.CommandBuffer = (*CommandBuffer)(nil)
)
