//go:build !nogpu

package native

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hexgrid/gpucore"
)

// presentShaderSource draws a texture over the whole viewport with a
// generated triangle, mirroring the sampled coordinates per params.flip.
const presentShaderSource = `
struct Params {
    flip: vec2<f32>,
    pad: vec2<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var src_samp: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    let x = f32(i32(index & 1u) * 4 - 1);
    let y = f32(i32(index >> 1u) * 4 - 1);
    var uv = vec2<f32>((x + 1.0) * 0.5, (1.0 - y) * 0.5);
    if params.flip.x > 0.5 {
        uv.x = 1.0 - uv.x;
    }
    if params.flip.y > 0.5 {
        uv.y = 1.0 - uv.y;
    }
    var out: VertexOutput;
    out.position = vec4<f32>(x, y, 0.0, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(src_tex, src_samp, in.uv);
}
`

const presentParamsSize = 16

type presentKey struct {
	src    gpucore.TextureID
	filter gpucore.Filter
}

// presenter blits finished frames onto the window surface view supplied
// for the current frame.
type presenter struct {
	d *Device

	mu     sync.Mutex
	target hal.TextureView
	width  uint32
	height uint32
	format gputypes.TextureFormat

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	layout     hal.PipelineLayout
	pipelines  map[gputypes.TextureFormat]hal.RenderPipeline
	samplers   [2]hal.Sampler
	params     hal.Buffer
	ready      bool

	// groups is guarded by d.mu, like the pipeline bind group caches.
	groups map[presentKey]hal.BindGroup
}

func newPresenter(d *Device) *presenter {
	return &presenter{
		d:         d,
		pipelines: make(map[gputypes.TextureFormat]hal.RenderPipeline),
		groups:    make(map[presentKey]hal.BindGroup),
	}
}

// SetPresentTarget sets the surface view that QueuePresent draws into until
// it is cleared. view is the *wgpu.TextureView a gogpu frame hands out, or
// a hal.TextureView.
func (d *Device) SetPresentTarget(view any, width, height uint32, format gputypes.TextureFormat) error {
	v, err := surfaceView(view)
	if err != nil {
		return err
	}
	p := d.present
	p.mu.Lock()
	p.target, p.width, p.height, p.format = v, width, height, format
	p.mu.Unlock()
	return nil
}

// ClearPresentTarget drops the surface view; QueuePresent becomes a no-op.
func (d *Device) ClearPresentTarget() {
	p := d.present
	p.mu.Lock()
	p.target = nil
	p.mu.Unlock()
}

// surfaceView unwraps view to the HAL texture view it is backed by.
func surfaceView(view any) (hal.TextureView, error) {
	switch v := view.(type) {
	case *wgpu.TextureView:
		if v == nil {
			return nil, fmt.Errorf("%w: no surface view for this frame", ErrUnsupported)
		}
		if hv := v.HalTextureView(); hv != nil {
			return hv, nil
		}
		return nil, fmt.Errorf("%w: surface view released", ErrUnsupported)
	case hal.TextureView:
		return v, nil
	}
	return nil, fmt.Errorf("%w: present target %T is not a texture view", ErrUnsupported, view)
}

// presentViewport converts dst into a positive viewport clamped to the
// target plus the per-axis mirror flags.
func presentViewport(dst gpucore.Rect, width, height uint32) (x, y, w, h float32, flipX, flipY bool) {
	x0, y0, rw, rh := dst.X, dst.Y, dst.W, dst.H
	if rw < 0 {
		x0, rw, flipX = x0+rw, -rw, true
	}
	if rh < 0 {
		y0, rh, flipY = y0+rh, -rh, true
	}
	x0 = min(max(x0, 0), int32(width))
	y0 = min(max(y0, 0), int32(height))
	rw = min(rw, int32(width)-x0)
	rh = min(rh, int32(height)-y0)
	return float32(x0), float32(y0), float32(rw), float32(rh), flipX, flipY
}

func presentParams(flipX, flipY bool) []byte {
	buf := make([]byte, presentParamsSize)
	flag := func(b bool) uint32 {
		if b {
			return math.Float32bits(1)
		}
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], flag(flipX))
	binary.LittleEndian.PutUint32(buf[4:8], flag(flipY))
	return buf
}

func (p *presenter) encode(enc hal.CommandEncoder, src gpucore.TextureID, dst gpucore.Rect, filter gpucore.Filter) error {
	d := p.d
	d.mu.RLock()
	t, ok := d.textures[src]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: present source texture %d", gpucore.ErrUnknownResource, src)
	}
	if t.desc.Usage&gpucore.TextureUsageSampled == 0 {
		return fmt.Errorf("%w: present source %q is not sampled", gpucore.ErrInvalidCommand, t.desc.Label)
	}

	p.mu.Lock()
	target, width, height, format := p.target, p.width, p.height, p.format
	var pipe hal.RenderPipeline
	var err error
	if target != nil {
		pipe, err = p.pipelineLocked(format)
	}
	p.mu.Unlock()
	if target == nil {
		return nil
	}
	if err != nil {
		return err
	}

	group, err := p.group(src, t, filter)
	if err != nil {
		return err
	}

	x, y, w, h, flipX, flipY := presentViewport(dst, width, height)
	if w <= 0 || h <= 0 {
		return nil
	}

	d.queueMu.Lock()
	err = d.queue.WriteBuffer(p.params, 0, presentParams(flipX, flipY))
	d.queueMu.Unlock()
	if err != nil {
		return fmt.Errorf("native: write present params: %w", err)
	}

	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})
	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "present",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(pipe)
	rp.SetBindGroup(0, group, nil)
	rp.SetViewport(x, y, w, h, 0, 1)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageTextureBinding,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	return nil
}

// pipelineLocked returns the blit pipeline for format, creating the shared
// objects on first use. Called with p.mu held.
func (p *presenter) pipelineLocked(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	if pipe, ok := p.pipelines[format]; ok {
		return pipe, nil
	}
	if err := p.initLocked(); err != nil {
		return nil, err
	}

	device := p.d.device
	pipe, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "present_pipeline",
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create present pipeline: %w", err)
	}
	p.pipelines[format] = pipe
	slogger().Debug("native: present pipeline created", "format", format)
	return pipe, nil
}

func (p *presenter) initLocked() error {
	if p.ready {
		return nil
	}
	p.releaseLocked()
	device := p.d.device
	var err error

	p.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "present_shader",
		Source: hal.ShaderSource{WGSL: presentShaderSource},
	})
	if err != nil {
		return fmt.Errorf("native: create present shader: %w", err)
	}

	p.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "present_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("native: create present bind group layout: %w", err)
	}

	p.layout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "present_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("native: create present pipeline layout: %w", err)
	}

	p.params, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "present_params",
		Size:  presentParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: create present params: %w", err)
	}

	for i, f := range []gpucore.Filter{gpucore.FilterNearest, gpucore.FilterLinear} {
		p.samplers[i], err = device.CreateSampler(samplerDescriptor(&gpucore.SamplerDescriptor{
			Label:        "present_sampler",
			MinFilter:    f,
			MagFilter:    f,
			MipmapFilter: gpucore.FilterNearest,
			AddressU:     gpucore.AddressModeClampToEdge,
			AddressV:     gpucore.AddressModeClampToEdge,
			AddressW:     gpucore.AddressModeClampToEdge,
		}))
		if err != nil {
			return fmt.Errorf("native: create present sampler: %w", err)
		}
	}
	p.ready = true
	return nil
}

func (p *presenter) group(src gpucore.TextureID, t *texture, filter gpucore.Filter) (hal.BindGroup, error) {
	key := presentKey{src: src, filter: filter}
	sampler := p.samplers[0]
	if filter == gpucore.FilterLinear {
		sampler = p.samplers[1]
	}

	d := p.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := p.groups[key]; ok {
		return g, nil
	}
	g, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "present_bind_group",
		Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: p.params.NativeHandle(), Offset: 0, Size: presentParamsSize}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}},
			{Binding: 2, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create present bind group: %w", err)
	}
	p.groups[key] = g
	return g, nil
}

// dropGroupsLocked releases cached bind groups. Called with d.mu held.
func (p *presenter) dropGroupsLocked() {
	for k, g := range p.groups {
		p.d.device.DestroyBindGroup(g)
		delete(p.groups, k)
	}
}

func (p *presenter) destroy() {
	p.d.mu.Lock()
	p.dropGroupsLocked()
	p.d.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
	p.target = nil
}

// releaseLocked destroys the blit objects. Called with p.mu held.
func (p *presenter) releaseLocked() {
	device := p.d.device
	p.ready = false
	for f, pipe := range p.pipelines {
		device.DestroyRenderPipeline(pipe)
		delete(p.pipelines, f)
	}
	for i, s := range p.samplers {
		if s != nil {
			device.DestroySampler(s)
			p.samplers[i] = nil
		}
	}
	if p.params != nil {
		device.DestroyBuffer(p.params)
		p.params = nil
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
