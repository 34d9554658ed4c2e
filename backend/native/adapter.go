//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hexgrid/gpucore"
)

// Backend errors.
var (
	// ErrDeviceUnavailable is returned when no GPU device could be opened.
	ErrDeviceUnavailable = errors.New("native: GPU device unavailable")

	// ErrUnsupported is returned for state the HAL cannot express.
	ErrUnsupported = errors.New("native: unsupported")

	// ErrIncomplete is returned when submitted work has not completed after
	// the device went idle.
	ErrIncomplete = errors.New("native: GPU work did not complete")
)

type texture struct {
	desc gpucore.TextureDescriptor
	tex  hal.Texture
	view hal.TextureView
}

type buffer struct {
	desc gpucore.BufferDescriptor
	buf  hal.Buffer
}

type framebuffer struct {
	pass   gpucore.RenderPassDescriptor
	target gpucore.TextureID
	width  uint32
	height uint32
}

// submission is a command buffer in flight with the encoder that owns it.
type submission struct {
	index   uint64
	cb      hal.CommandBuffer
	encoder hal.CommandEncoder
}

// Device implements gpucore.Device using gogpu/wgpu/hal directly.
//
// Resource maps are guarded by mu. Queue writes, reads and submissions are
// serialized by queueMu so the capture worker never interleaves with the
// render loop on the queue.
type Device struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	// instance is set when Open created the device; shared devices are
	// not destroyed by Close.
	instance hal.Instance
	owned    bool
	mode     gpucore.PresentMode

	nextID atomic.Uint64

	shaders      map[gpucore.ShaderModuleID]hal.ShaderModule
	textures     map[gpucore.TextureID]*texture
	samplers     map[gpucore.SamplerID]hal.Sampler
	buffers      map[gpucore.BufferID]*buffer
	passes       map[gpucore.RenderPassID]gpucore.RenderPassDescriptor
	framebuffers map[gpucore.FramebufferID]*framebuffer
	pipelines    map[gpucore.GraphicsPipelineID]*pipeline

	queueMu   sync.Mutex
	submitted uint64
	inFlight  []submission

	present *presenter
	closed  atomic.Bool
}

// NewDevice wraps an open HAL device and queue. The caller keeps ownership
// of both; Close releases only the resources created through the Device.
func NewDevice(device hal.Device, queue hal.Queue, opts Options) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil HAL device or queue", ErrDeviceUnavailable)
	}
	d := &Device{
		device:       device,
		queue:        queue,
		mode:         opts.PresentMode,
		shaders:      make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		textures:     make(map[gpucore.TextureID]*texture),
		samplers:     make(map[gpucore.SamplerID]hal.Sampler),
		buffers:      make(map[gpucore.BufferID]*buffer),
		passes:       make(map[gpucore.RenderPassID]gpucore.RenderPassDescriptor),
		framebuffers: make(map[gpucore.FramebufferID]*framebuffer),
		pipelines:    make(map[gpucore.GraphicsPipelineID]*pipeline),
	}
	d.present = newPresenter(d)

	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d, nil
}

// newID generates a unique resource ID.
func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// PresentMode returns the present mode requested when the device was opened.
func (d *Device) PresentMode() gpucore.PresentMode { return d.mode }

// HAL returns the underlying device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// === Shader Modules ===

// CreateShaderModule creates a shader module from SPIR-V words.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDescriptor) (gpucore.ShaderModuleID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	if len(desc.SPIRV) == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: shader %q: empty SPIR-V", desc.Label)
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: desc.Label,
		Source: hal.ShaderSource{
			SPIRV: desc.SPIRV,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module %q: %w", desc.Label, err)
	}

	id := gpucore.ShaderModuleID(d.newID())
	d.mu.Lock()
	d.shaders[id] = module
	d.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	module, ok := d.shaders[id]
	delete(d.shaders, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyShaderModule(module)
	}
}

// === Textures ===

// CreateTexture creates a 2D texture and its default view.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: texture %q: zero size", desc.Label)
	}
	format, err := convertTextureFormat(desc.Format)
	if err != nil {
		return gpucore.InvalidID, err
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}

	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("native: create texture view %q: %w", desc.Label, err)
	}

	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = &texture{desc: *desc, tex: tex, view: view}
	d.mu.Unlock()
	return id, nil
}

// WriteTexture uploads tightly packed rows covering the whole texture.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) error {
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, id)
	}

	bpp := t.desc.Format.BytesPerPixel()
	if want := int(t.desc.Width * t.desc.Height * bpp); len(data) < want {
		return fmt.Errorf("native: texture %q: %d bytes, want %d", t.desc.Label, len(data), want)
	}

	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  t.desc.Width * bpp,
			RowsPerImage: t.desc.Height,
		},
		&hal.Extent3D{Width: t.desc.Width, Height: t.desc.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("native: write texture %q: %w", t.desc.Label, err)
	}
	return nil
}

// DestroyTexture releases a texture, its view and any bind group using it.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	if ok {
		d.dropBindGroupsLocked()
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
	}
}

// === Samplers ===

// CreateSampler creates a texture sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDescriptor) (gpucore.SamplerID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	s, err := d.device.CreateSampler(samplerDescriptor(desc))
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create sampler %q: %w", desc.Label, err)
	}

	id := gpucore.SamplerID(d.newID())
	d.mu.Lock()
	d.samplers[id] = s
	d.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler and any bind group using it.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	s, ok := d.samplers[id]
	delete(d.samplers, id)
	if ok {
		d.dropBindGroupsLocked()
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroySampler(s)
	}
}

// === Buffers ===

// CreateBuffer creates a GPU buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %q: zero size", desc.Label)
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}

	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = &buffer{desc: *desc, buf: buf}
	d.mu.Unlock()
	return id, nil
}

func (d *Device) lookupBuffer(id gpucore.BufferID, offset uint64, n int) (*buffer, error) {
	d.mu.RLock()
	b, ok := d.buffers[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(n) > b.desc.Size {
		return nil, fmt.Errorf("native: buffer %q: range [%d, %d) exceeds size %d",
			b.desc.Label, offset, offset+uint64(n), b.desc.Size)
	}
	return b, nil
}

// WriteBuffer writes data into a buffer at offset.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, err := d.lookupBuffer(id, offset, len(data))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	if err := d.queue.WriteBuffer(b.buf, offset, data); err != nil {
		return fmt.Errorf("native: write buffer %q: %w", b.desc.Label, err)
	}
	return nil
}

// ReadBuffer maps a CPU-readable buffer and copies [offset, offset+len(dst))
// into dst. The caller must have waited for the submission that wrote it.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	b, err := d.lookupBuffer(id, offset, len(dst))
	if err != nil {
		return err
	}
	if b.desc.Usage&gpucore.BufferUsageMapRead == 0 {
		return fmt.Errorf("native: buffer %q is not CPU-readable", b.desc.Label)
	}
	if len(dst) == 0 {
		return nil
	}

	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	mapping, err := d.device.MapBuffer(b.buf, offset, uint64(len(dst)))
	if err != nil {
		return fmt.Errorf("native: map buffer %q: %w", b.desc.Label, err)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), len(dst)))
	if err := d.device.UnmapBuffer(b.buf); err != nil {
		return fmt.Errorf("native: unmap buffer %q: %w", b.desc.Label, err)
	}
	return nil
}

// DestroyBuffer releases a GPU buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(b.buf)
	}
}

// === Render Passes and Framebuffers ===

// CreateRenderPass records the attachment description. WebGPU has no
// render pass object; the description is applied when a pass begins.
func (d *Device) CreateRenderPass(desc *gpucore.RenderPassDescriptor) (gpucore.RenderPassID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	if _, err := convertTextureFormat(desc.Format); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.RenderPassID(d.newID())
	d.mu.Lock()
	d.passes[id] = *desc
	d.mu.Unlock()
	return id, nil
}

// DestroyRenderPass forgets a render pass description.
func (d *Device) DestroyRenderPass(id gpucore.RenderPassID) {
	d.mu.Lock()
	delete(d.passes, id)
	d.mu.Unlock()
}

// CreateFramebuffer binds a color target to a render pass.
func (d *Device) CreateFramebuffer(desc *gpucore.FramebufferDescriptor) (gpucore.FramebufferID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pass, ok := d.passes[desc.RenderPass]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: render pass %d", gpucore.ErrUnknownResource, desc.RenderPass)
	}
	t, ok := d.textures[desc.ColorTarget]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, desc.ColorTarget)
	}
	if t.desc.Width != desc.Width || t.desc.Height != desc.Height {
		return gpucore.InvalidID, fmt.Errorf("%w: framebuffer %q is %dx%d, target is %dx%d",
			gpucore.ErrDimensionMismatch, desc.Label, desc.Width, desc.Height, t.desc.Width, t.desc.Height)
	}
	if t.desc.Format != pass.Format {
		return gpucore.InvalidID, fmt.Errorf("native: framebuffer %q: target format %d, pass format %d",
			desc.Label, t.desc.Format, pass.Format)
	}
	if t.desc.Usage&gpucore.TextureUsageColorTarget == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: framebuffer %q: texture is not a color target", desc.Label)
	}

	id := gpucore.FramebufferID(d.newID())
	d.framebuffers[id] = &framebuffer{pass: pass, target: desc.ColorTarget, width: desc.Width, height: desc.Height}
	return id, nil
}

// DestroyFramebuffer forgets a framebuffer. The color target is not destroyed.
func (d *Device) DestroyFramebuffer(id gpucore.FramebufferID) {
	d.mu.Lock()
	delete(d.framebuffers, id)
	d.mu.Unlock()
}

// === Submission ===

// AcquireCommandBuffer starts recording a new command buffer. The previous
// submission is awaited first: uniform writes made while recording go
// straight to buffers it may still be reading.
func (d *Device) AcquireCommandBuffer() (gpucore.CommandBuffer, error) {
	if d.closed.Load() {
		return nil, gpucore.ErrDeviceClosed
	}
	if err := d.Wait(); err != nil {
		return nil, err
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "frame_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &commandBuffer{device: d, encoder: encoder}, nil
}

// Submit finishes cb and hands it to the queue without waiting for it.
func (d *Device) Submit(cb gpucore.CommandBuffer) error {
	c, ok := cb.(*commandBuffer)
	if !ok || c.device != d {
		return fmt.Errorf("%w: command buffer from another device", gpucore.ErrInvalidCommand)
	}
	halCB, err := c.finish()
	if err != nil {
		return err
	}

	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	index, err := d.queue.Submit([]hal.CommandBuffer{halCB})
	if err != nil {
		c.encoder.ResetAll([]hal.CommandBuffer{halCB})
		c.encoder.Destroy()
		return fmt.Errorf("native: submit: %w", err)
	}
	d.submitted = index
	d.inFlight = append(d.inFlight, submission{index: index, cb: halCB, encoder: c.encoder})
	return nil
}

// Wait blocks until every submitted command buffer has completed.
func (d *Device) Wait() error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return d.waitLocked()
}

func (d *Device) waitLocked() error {
	if d.queue.PollCompleted() < d.submitted {
		if err := d.device.WaitIdle(); err != nil {
			return fmt.Errorf("native: wait idle: %w", err)
		}
	}
	done := d.queue.PollCompleted()
	d.reclaimLocked(done)
	if done < d.submitted {
		return fmt.Errorf("%w: completed %d of %d", ErrIncomplete, done, d.submitted)
	}
	return nil
}

// reclaimLocked recycles the encoders of submissions up to done.
func (d *Device) reclaimLocked(done uint64) {
	kept := d.inFlight[:0]
	for _, s := range d.inFlight {
		if s.index > done {
			kept = append(kept, s)
			continue
		}
		s.encoder.ResetAll([]hal.CommandBuffer{s.cb})
		s.encoder.Destroy()
	}
	d.inFlight = kept
}

// Close waits for the GPU, releases every resource still alive and, when
// the device was opened by Open, the device and instance themselves.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	err := d.Wait()

	d.present.destroy()

	d.mu.Lock()
	for id, p := range d.pipelines {
		p.destroy(d.device)
		delete(d.pipelines, id)
	}
	for id := range d.framebuffers {
		delete(d.framebuffers, id)
	}
	for id := range d.passes {
		delete(d.passes, id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
	for id, s := range d.samplers {
		d.device.DestroySampler(s)
		delete(d.samplers, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
		delete(d.textures, id)
	}
	for id, m := range d.shaders {
		d.device.DestroyShaderModule(m)
		delete(d.shaders, id)
	}
	d.mu.Unlock()

	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	slogger().Info("native: device closed", "owned", d.owned)
	return err
}

// Live returns the number of resources currently tracked.
func (d *Device) Live() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.shaders) + len(d.textures) + len(d.samplers) + len(d.buffers) +
		len(d.passes) + len(d.framebuffers) + len(d.pipelines)
}
