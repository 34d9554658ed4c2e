// Package registry creates and owns every GPU object the frame loop uses.
//
// All resources are created once by New from the window size and released
// together by Release. Nothing is created or destroyed while frames run.
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/hexgrid/gpucore"
	"github.com/gogpu/hexgrid/internal/frame"
	"github.com/gogpu/hexgrid/internal/image"
	"github.com/gogpu/hexgrid/internal/shader"
)

// ColorTargetFormat is the format of the offscreen color target and of
// captured frames.
const ColorTargetFormat = gpucore.TextureFormatRGBA8Unorm

// TextureCount is the number of texture/sampler pairs the fragment shader reads.
const TextureCount = 2

// VertexStride is the size of one vertex: vec3 position + vec2 uv.
const VertexStride = 20

// FullscreenTriangle holds position (x, y, z) and uv (u, v) for one triangle
// whose clipped silhouette covers the whole viewport. The vertices lie
// outside [-1, 1] so no diagonal seam is rasterized. Winding is clockwise
// in y-up clip space.
var FullscreenTriangle = [3 * 5]float32{
	-1, -1, 0, 0, 1,
	-1, 3, 0, 0, -1,
	3, -1, 0, 2, 1,
}

// Registry errors.
var (
	// ErrInvalidSize is returned for a zero window dimension.
	ErrInvalidSize = errors.New("registry: window size must be non-zero")

	// ErrTextureCount is returned when the descriptor does not name two textures.
	ErrTextureCount = errors.New("registry: exactly two textures are required")
)

// Stage selects a shader file and its entry point.
type Stage struct {
	Path       string
	EntryPoint string
}

// Descriptor lists the assets and target size used to build a Registry.
type Descriptor struct {
	Width    uint32
	Height   uint32
	Vertex   Stage
	Fragment Stage
	Textures []string
}

// Registry owns the GPU objects for one window.
type Registry struct {
	device gpucore.Device
	width  uint32
	height uint32

	vertexShader   gpucore.ShaderModuleID
	fragmentShader gpucore.ShaderModuleID
	textures       [TextureCount]gpucore.TextureID
	sampler        gpucore.SamplerID
	vertexBuffer   gpucore.BufferID
	renderPass     gpucore.RenderPassID
	colorTarget    gpucore.TextureID
	framebuffer    gpucore.FramebufferID
	pipeline       gpucore.GraphicsPipelineID
	staging        gpucore.BufferID
	stagingSize    uint64

	released bool
}

// New creates every resource described by desc. On failure, resources
// created so far are released before the error is returned.
func New(device gpucore.Device, desc Descriptor) (*Registry, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, ErrInvalidSize
	}
	if len(desc.Textures) != TextureCount {
		return nil, fmt.Errorf("%w: got %d", ErrTextureCount, len(desc.Textures))
	}

	r := &Registry{device: device, width: desc.Width, height: desc.Height}
	if err := r.init(desc); err != nil {
		r.Release()
		return nil, err
	}

	slogger().Info("registry: resources created",
		"width", r.width, "height", r.height, "staging_bytes", r.stagingSize)
	return r, nil
}

func (r *Registry) init(desc Descriptor) error {
	var err error
	if r.vertexShader, err = r.LoadShader(desc.Vertex.Path, gpucore.ShaderStageVertex); err != nil {
		return err
	}
	if r.fragmentShader, err = r.LoadShader(desc.Fragment.Path, gpucore.ShaderStageFragment); err != nil {
		return err
	}
	for i, path := range desc.Textures {
		if r.textures[i], err = r.LoadTexture(path); err != nil {
			return err
		}
	}

	sampler := gpucore.SamplerLinearWrap()
	sampler.Label = "linear_wrap"
	if r.sampler, err = r.device.CreateSampler(&sampler); err != nil {
		return fmt.Errorf("registry: create sampler: %w", err)
	}

	if err := r.createVertexBuffer(); err != nil {
		return err
	}
	if err := r.createTarget(); err != nil {
		return err
	}

	pd := PipelineDescriptor(r.renderPass, r.width, r.height,
		gpucore.ShaderStageState{Module: r.vertexShader, EntryPoint: entryPoint(desc.Vertex)},
		gpucore.ShaderStageState{Module: r.fragmentShader, EntryPoint: entryPoint(desc.Fragment)},
	)
	if r.pipeline, err = r.device.CreateGraphicsPipeline(&pd); err != nil {
		return fmt.Errorf("registry: create pipeline: %w", err)
	}

	return r.createStaging()
}

func entryPoint(s Stage) string {
	if s.EntryPoint == "" {
		return "main"
	}
	return s.EntryPoint
}

// LoadShader reads and compiles the shader at path into a module.
func (r *Registry) LoadShader(path string, stage gpucore.ShaderStage) (gpucore.ShaderModuleID, error) {
	words, err := shader.Load(path)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("registry: load %s shader: %w", stage, err)
	}
	id, err := r.device.CreateShaderModule(&gpucore.ShaderModuleDescriptor{
		Label: path,
		Stage: stage,
		SPIRV: words,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("registry: create %s shader %s: %w", stage, path, err)
	}
	slogger().Debug("registry: shader loaded", "path", path, "stage", stage.String(), "words", len(words))
	return id, nil
}

// LoadTexture decodes the image at path and uploads it to a sampled texture.
func (r *Registry) LoadTexture(path string) (gpucore.TextureID, error) {
	img, err := image.Load(path)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("registry: load texture %s: %w", path, err)
	}
	id, err := r.device.CreateTexture(&gpucore.TextureDescriptor{
		Label:  path,
		Width:  uint32(img.Width),
		Height: uint32(img.Height),
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageSampled | gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("registry: create texture %s: %w", path, err)
	}
	if err := r.device.WriteTexture(id, img.Pix); err != nil {
		r.device.DestroyTexture(id)
		return gpucore.InvalidID, fmt.Errorf("registry: upload texture %s: %w", path, err)
	}
	slogger().Debug("registry: texture loaded", "path", path, "width", img.Width, "height", img.Height)
	return id, nil
}

func (r *Registry) createVertexBuffer() error {
	data := VertexBytes()
	id, err := r.device.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "fullscreen_triangle",
		Size:  uint64(len(data)),
		Usage: gpucore.BufferUsageVertex | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("registry: create vertex buffer: %w", err)
	}
	r.vertexBuffer = id
	if err := r.device.WriteBuffer(id, 0, data); err != nil {
		return fmt.Errorf("registry: upload vertex buffer: %w", err)
	}
	return nil
}

func (r *Registry) createTarget() error {
	var err error
	r.renderPass, err = r.device.CreateRenderPass(&gpucore.RenderPassDescriptor{
		Label:   "main_pass",
		Format:  ColorTargetFormat,
		LoadOp:  gpucore.LoadOpClear,
		StoreOp: gpucore.StoreOpStore,
	})
	if err != nil {
		return fmt.Errorf("registry: create render pass: %w", err)
	}

	r.colorTarget, err = r.device.CreateTexture(&gpucore.TextureDescriptor{
		Label:  "color_target",
		Width:  r.width,
		Height: r.height,
		Format: ColorTargetFormat,
		Usage: gpucore.TextureUsageColorTarget | gpucore.TextureUsageSampled |
			gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("registry: create color target: %w", err)
	}

	r.framebuffer, err = r.device.CreateFramebuffer(&gpucore.FramebufferDescriptor{
		Label:       "main_framebuffer",
		RenderPass:  r.renderPass,
		ColorTarget: r.colorTarget,
		Width:       r.width,
		Height:      r.height,
	})
	if err != nil {
		return fmt.Errorf("registry: create framebuffer: %w", err)
	}
	return nil
}

func (r *Registry) createStaging() error {
	r.stagingSize = uint64(r.RowPitch()) * uint64(r.height)
	id, err := r.device.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "capture_staging",
		Size:  r.stagingSize,
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("registry: create staging buffer: %w", err)
	}
	r.staging = id
	return nil
}

// PipelineDescriptor composes the graphics pipeline for the fullscreen
// effect from the named presets.
func PipelineDescriptor(pass gpucore.RenderPassID, width, height uint32, vertex, fragment gpucore.ShaderStageState) gpucore.GraphicsPipelineDescriptor {
	return gpucore.GraphicsPipelineDescriptor{
		Label:        "hexagon_grid",
		ColorBlend:   gpucore.ColorBlendDisabled(),
		DepthStencil: gpucore.DepthStencilDisabled(),
		Vertex:       vertex,
		Fragment:     fragment,
		Multisample:  gpucore.MultisampleOff(),
		Layout: gpucore.PipelineLayout{
			VertexSamplerCount:   0,
			FragmentSamplerCount: TextureCount,
			FragmentUniformSize:  frame.UniformSize,
		},
		Rasterizer: gpucore.RasterizerCullCounterClockwise(),
		Primitive:  gpucore.PrimitiveTriangleList,
		VertexInput: gpucore.VertexInputState{
			Stride: VertexStride,
			Attributes: []gpucore.VertexAttribute{
				{Location: 0, Format: gpucore.VertexFormatFloat3, Offset: 0},
				{Location: 1, Format: gpucore.VertexFormatFloat2, Offset: 12},
			},
		},
		Viewport:   gpucore.ViewportFull(width, height),
		RenderPass: pass,
	}
}

// VertexBytes returns FullscreenTriangle as little-endian float32 bytes.
func VertexBytes() []byte {
	buf := make([]byte, len(FullscreenTriangle)*4)
	for i, f := range FullscreenTriangle {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Release destroys every resource in reverse creation order.
// It is safe to call more than once.
func (r *Registry) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true

	d := r.device
	if r.staging != gpucore.InvalidID {
		d.DestroyBuffer(r.staging)
	}
	if r.pipeline != gpucore.InvalidID {
		d.DestroyGraphicsPipeline(r.pipeline)
	}
	if r.framebuffer != gpucore.InvalidID {
		d.DestroyFramebuffer(r.framebuffer)
	}
	if r.colorTarget != gpucore.InvalidID {
		d.DestroyTexture(r.colorTarget)
	}
	if r.renderPass != gpucore.InvalidID {
		d.DestroyRenderPass(r.renderPass)
	}
	if r.vertexBuffer != gpucore.InvalidID {
		d.DestroyBuffer(r.vertexBuffer)
	}
	if r.sampler != gpucore.InvalidID {
		d.DestroySampler(r.sampler)
	}
	for i := len(r.textures) - 1; i >= 0; i-- {
		if r.textures[i] != gpucore.InvalidID {
			d.DestroyTexture(r.textures[i])
		}
	}
	if r.fragmentShader != gpucore.InvalidID {
		d.DestroyShaderModule(r.fragmentShader)
	}
	if r.vertexShader != gpucore.InvalidID {
		d.DestroyShaderModule(r.vertexShader)
	}
	slogger().Debug("registry: resources released")
}

// Device returns the device the resources belong to.
func (r *Registry) Device() gpucore.Device { return r.device }

// Size returns the color target dimensions.
func (r *Registry) Size() (width, height uint32) { return r.width, r.height }

// Pipeline returns the graphics pipeline.
func (r *Registry) Pipeline() gpucore.GraphicsPipelineID { return r.pipeline }

// Framebuffer returns the offscreen framebuffer.
func (r *Registry) Framebuffer() gpucore.FramebufferID { return r.framebuffer }

// ColorTarget returns the offscreen color target texture.
func (r *Registry) ColorTarget() gpucore.TextureID { return r.colorTarget }

// VertexBuffer returns the fullscreen triangle buffer.
func (r *Registry) VertexBuffer() gpucore.BufferID { return r.vertexBuffer }

// FragmentBindings returns the texture/sampler pairs in shader binding order.
func (r *Registry) FragmentBindings() []gpucore.TextureSamplerBinding {
	out := make([]gpucore.TextureSamplerBinding, TextureCount)
	for i, t := range r.textures {
		out[i] = gpucore.TextureSamplerBinding{Texture: t, Sampler: r.sampler}
	}
	return out
}

// Staging returns the CPU-readable capture buffer.
func (r *Registry) Staging() gpucore.BufferID { return r.staging }

// StagingSize returns the capture buffer size in bytes.
func (r *Registry) StagingSize() uint64 { return r.stagingSize }

// RowPitch returns the byte distance between rows in the staging buffer.
func (r *Registry) RowPitch() uint32 {
	return gpucore.AlignedBytesPerRow(r.width, ColorTargetFormat.BytesPerPixel())
}
