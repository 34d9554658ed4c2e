//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hexgrid/gpucore"
)

// Fragment bindings in group 0: the uniform block at binding 0, then one
// texture/sampler pair per fragment sampler at 1+2i and 2+2i.
const uniformBinding = 0

func textureBinding(i int) uint32 { return uint32(1 + 2*i) }
func samplerBinding(i int) uint32 { return uint32(2 + 2*i) }

// pipeline holds a render pipeline with its layout objects and the
// buffer backing the pushed fragment uniforms.
type pipeline struct {
	desc        gpucore.GraphicsPipelineDescriptor
	bindLayout  hal.BindGroupLayout
	layout      hal.PipelineLayout
	pipe        hal.RenderPipeline
	uniforms    hal.Buffer
	uniformSize uint64

	// groups caches bind groups by sampler binding list.
	groups map[string]hal.BindGroup
}

func (p *pipeline) destroy(device hal.Device) {
	p.dropBindGroups(device)
	if p.pipe != nil {
		device.DestroyRenderPipeline(p.pipe)
		p.pipe = nil
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.uniforms != nil {
		device.DestroyBuffer(p.uniforms)
		p.uniforms = nil
	}
}

func (p *pipeline) dropBindGroups(device hal.Device) {
	for k, g := range p.groups {
		device.DestroyBindGroup(g)
		delete(p.groups, k)
	}
}

// dropBindGroupsLocked releases every cached bind group. Called with mu held
// whenever a texture or sampler they may reference goes away.
func (d *Device) dropBindGroupsLocked() {
	for _, p := range d.pipelines {
		p.dropBindGroups(d.device)
	}
	d.present.dropGroupsLocked()
}

func bindLayoutEntries(l gpucore.PipelineLayout) []gputypes.BindGroupLayoutEntry {
	var entries []gputypes.BindGroupLayoutEntry
	if l.FragmentUniformSize > 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uniformBinding,
			Visibility: gputypes.ShaderStageFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeUniform,
			},
		})
	}
	for i := range int(l.FragmentSamplerCount) {
		entries = append(entries,
			gputypes.BindGroupLayoutEntry{
				Binding:    textureBinding(i),
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    samplerBinding(i),
				Visibility: gputypes.ShaderStageFragment,
				Sampler: &gputypes.SamplerBindingLayout{
					Type: gputypes.SamplerBindingTypeFiltering,
				},
			},
		)
	}
	return entries
}

// CreateGraphicsPipeline builds a render pipeline from the aggregated
// descriptor. Depth, stencil and vertex-stage samplers are rejected since
// framebuffers carry a single color attachment.
func (d *Device) CreateGraphicsPipeline(desc *gpucore.GraphicsPipelineDescriptor) (gpucore.GraphicsPipelineID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.DepthStencil.DepthTest || desc.DepthStencil.DepthWrite || desc.DepthStencil.StencilTest {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q: depth/stencil attachment", ErrUnsupported, desc.Label)
	}
	if desc.Layout.VertexSamplerCount > 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q: vertex-stage samplers", ErrUnsupported, desc.Label)
	}
	if desc.Multisample.Mask != 0xFFFFFFFF {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q: partial sample mask", ErrUnsupported, desc.Label)
	}
	if desc.Rasterizer.FillMode != gpucore.FillModeFill {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q: line fill mode", ErrUnsupported, desc.Label)
	}

	d.mu.RLock()
	vs, okVS := d.shaders[desc.Vertex.Module]
	fs, okFS := d.shaders[desc.Fragment.Module]
	pass, okPass := d.passes[desc.RenderPass]
	d.mu.RUnlock()
	if !okVS || !okFS {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q shader module", gpucore.ErrUnknownResource, desc.Label)
	}
	if !okPass {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q render pass", gpucore.ErrUnknownResource, desc.Label)
	}

	p, err := d.buildPipeline(desc, pass, vs, fs)
	if err != nil {
		p.destroy(d.device)
		return gpucore.InvalidID, err
	}

	id := gpucore.GraphicsPipelineID(d.newID())
	d.mu.Lock()
	d.pipelines[id] = p
	d.mu.Unlock()

	slogger().Debug("native: pipeline created", "label", desc.Label,
		"samplers", desc.Layout.FragmentSamplerCount, "uniform_bytes", desc.Layout.FragmentUniformSize)
	return id, nil
}

func (d *Device) buildPipeline(desc *gpucore.GraphicsPipelineDescriptor, pass gpucore.RenderPassDescriptor, vs, fs hal.ShaderModule) (*pipeline, error) {
	p := &pipeline{
		desc:        *desc,
		uniformSize: uint64(desc.Layout.FragmentUniformSize),
		groups:      make(map[string]hal.BindGroup),
	}

	format, err := convertTextureFormat(pass.Format)
	if err != nil {
		return p, err
	}
	buffers, err := convertVertexInput(desc.VertexInput)
	if err != nil {
		return p, err
	}

	if p.uniformSize > 0 {
		p.uniforms, err = d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label + "_uniforms",
			Size:  p.uniformSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return p, fmt.Errorf("native: create uniform buffer for %q: %w", desc.Label, err)
		}
	}

	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_bind_layout",
		Entries: bindLayoutEntries(desc.Layout),
	})
	if err != nil {
		return p, fmt.Errorf("native: create bind group layout for %q: %w", desc.Label, err)
	}

	p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return p, fmt.Errorf("native: create pipeline layout for %q: %w", desc.Label, err)
	}

	p.pipe, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    buffers,
		},
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    []gputypes.ColorTargetState{convertColorTarget(format, desc.ColorBlend)},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  convertTopology(desc.Primitive),
			FrontFace: convertFrontFace(desc.Rasterizer.FrontFace),
			CullMode:  convertCullMode(desc.Rasterizer.CullMode),
		},
		Multisample: gputypes.MultisampleState{
			Count: desc.Multisample.Count,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return p, fmt.Errorf("native: create render pipeline %q: %w", desc.Label, err)
	}
	return p, nil
}

// DestroyGraphicsPipeline releases a pipeline and everything it owns.
func (d *Device) DestroyGraphicsPipeline(id gpucore.GraphicsPipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	delete(d.pipelines, id)
	if ok {
		p.destroy(d.device)
	}
	d.mu.Unlock()
}

// bindGroup returns the bind group for p with the given texture/sampler
// pairs, creating and caching it on first use.
func (d *Device) bindGroup(p *pipeline, pairs []gpucore.TextureSamplerBinding) (hal.BindGroup, error) {
	if want := int(p.desc.Layout.FragmentSamplerCount); len(pairs) != want {
		return nil, fmt.Errorf("%w: pipeline %q expects %d texture/sampler pairs, %d bound",
			gpucore.ErrInvalidCommand, p.desc.Label, want, len(pairs))
	}
	key := fmt.Sprint(pairs)

	d.mu.Lock()
	defer d.mu.Unlock()

	if g, ok := p.groups[key]; ok {
		return g, nil
	}

	var entries []gputypes.BindGroupEntry
	if p.uniforms != nil {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uniformBinding,
			Resource: gputypes.BufferBinding{
				Buffer: p.uniforms.NativeHandle(),
				Offset: 0,
				Size:   p.uniformSize,
			},
		})
	}
	for i, pair := range pairs {
		t, ok := d.textures[pair.Texture]
		if !ok {
			return nil, fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, pair.Texture)
		}
		s, ok := d.samplers[pair.Sampler]
		if !ok {
			return nil, fmt.Errorf("%w: sampler %d", gpucore.ErrUnknownResource, pair.Sampler)
		}
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding:  textureBinding(i),
				Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
			},
			gputypes.BindGroupEntry{
				Binding:  samplerBinding(i),
				Resource: gputypes.SamplerBinding{Sampler: s.NativeHandle()},
			},
		)
	}

	g, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.desc.Label + "_bind_group",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create bind group for %q: %w", p.desc.Label, err)
	}
	p.groups[key] = g
	return g, nil
}
