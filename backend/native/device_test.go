//go:build !nogpu

package native

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hexgrid/gpucore"
)

// createNoopDevice opens a Device on the noop HAL backend.
func createNoopDevice(t *testing.T) *Device {
	t.Helper()
	d, err := Open(Options{Backend: BackendNoop})
	if err != nil {
		t.Fatalf("Open(noop) failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

var testSPIRV = []uint32{0x07230203, 0x00010000, 0, 1, 0}

type frameResources struct {
	pass     gpucore.RenderPassID
	target   gpucore.TextureID
	fb       gpucore.FramebufferID
	pipeline gpucore.GraphicsPipelineID
	vertices gpucore.BufferID
	pairs    []gpucore.TextureSamplerBinding
	staging  gpucore.BufferID
}

func newFrameResources(t *testing.T, d *Device, w, h uint32) *frameResources {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	r := &frameResources{}

	vs, err := d.CreateShaderModule(&gpucore.ShaderModuleDescriptor{Label: "vs", Stage: gpucore.ShaderStageVertex, SPIRV: testSPIRV})
	must(err)
	fs, err := d.CreateShaderModule(&gpucore.ShaderModuleDescriptor{Label: "fs", Stage: gpucore.ShaderStageFragment, SPIRV: testSPIRV})
	must(err)

	r.pass, err = d.CreateRenderPass(&gpucore.RenderPassDescriptor{
		Label: "main_pass", Format: gpucore.TextureFormatRGBA8Unorm,
		LoadOp: gpucore.LoadOpClear, StoreOp: gpucore.StoreOpStore,
	})
	must(err)
	r.target, err = d.CreateTexture(&gpucore.TextureDescriptor{
		Label: "color_target", Width: w, Height: h, Format: gpucore.TextureFormatRGBA8Unorm,
		Usage: gpucore.TextureUsageColorTarget | gpucore.TextureUsageSampled | gpucore.TextureUsageCopySrc,
	})
	must(err)
	r.fb, err = d.CreateFramebuffer(&gpucore.FramebufferDescriptor{
		Label: "fb", RenderPass: r.pass, ColorTarget: r.target, Width: w, Height: h,
	})
	must(err)

	r.pipeline, err = d.CreateGraphicsPipeline(&gpucore.GraphicsPipelineDescriptor{
		Label:        "test_pipeline",
		ColorBlend:   gpucore.ColorBlendDisabled(),
		DepthStencil: gpucore.DepthStencilDisabled(),
		Vertex:       gpucore.ShaderStageState{Module: vs, EntryPoint: "vs_main"},
		Fragment:     gpucore.ShaderStageState{Module: fs, EntryPoint: "fs_main"},
		Multisample:  gpucore.MultisampleOff(),
		Layout:       gpucore.PipelineLayout{FragmentSamplerCount: 2, FragmentUniformSize: 16},
		Rasterizer:   gpucore.RasterizerCullCounterClockwise(),
		Primitive:    gpucore.PrimitiveTriangleList,
		VertexInput: gpucore.VertexInputState{
			Stride: 20,
			Attributes: []gpucore.VertexAttribute{
				{Location: 0, Format: gpucore.VertexFormatFloat3, Offset: 0},
				{Location: 1, Format: gpucore.VertexFormatFloat2, Offset: 12},
			},
		},
		Viewport:   gpucore.ViewportFull(w, h),
		RenderPass: r.pass,
	})
	must(err)

	r.vertices, err = d.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "vertices", Size: 60, Usage: gpucore.BufferUsageVertex | gpucore.BufferUsageCopyDst,
	})
	must(err)
	must(d.WriteBuffer(r.vertices, 0, make([]byte, 60)))

	s := gpucore.SamplerLinearWrap()
	s.Label = "linear_wrap"
	sampler, err := d.CreateSampler(&s)
	must(err)
	for range 2 {
		tex, err := d.CreateTexture(&gpucore.TextureDescriptor{
			Label: "tex", Width: 2, Height: 2, Format: gpucore.TextureFormatRGBA8Unorm,
			Usage: gpucore.TextureUsageSampled | gpucore.TextureUsageCopyDst,
		})
		must(err)
		must(d.WriteTexture(tex, make([]byte, 16)))
		r.pairs = append(r.pairs, gpucore.TextureSamplerBinding{Texture: tex, Sampler: sampler})
	}

	r.staging, err = d.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "staging",
		Size:  uint64(gpucore.AlignedBytesPerRow(w, 4)) * uint64(h),
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	must(err)
	return r
}

func (r *frameResources) record(t *testing.T, d *Device, capture bool) gpucore.CommandBuffer {
	t.Helper()
	cb, err := d.AcquireCommandBuffer()
	if err != nil {
		t.Fatalf("AcquireCommandBuffer() error = %v", err)
	}
	cb.BeginRenderPass(r.fb, gpucore.Color{R: 237, G: 41, B: 57, A: 255})
	cb.BindGraphicsPipeline(r.pipeline)
	cb.PushFragmentUniforms(make([]byte, 16))
	cb.BindVertexBuffers(0, gpucore.BufferBinding{Buffer: r.vertices})
	cb.BindFragmentSamplers(0, r.pairs...)
	cb.DrawPrimitives(0, 1)
	cb.EndRenderPass()
	if capture {
		cb.CopyTextureToBuffer(r.target, r.staging)
	}
	cb.QueuePresent(r.target, gpucore.Rect{X: 0, Y: 4, W: 8, H: -4}, gpucore.FilterNearest)
	return cb
}

func TestOpenNoop(t *testing.T) {
	d := createNoopDevice(t)
	if !d.owned || d.instance == nil {
		t.Error("Open should own its device and instance")
	}
	if d.Live() != 0 {
		t.Errorf("Live() = %d, want 0", d.Live())
	}
	if err := d.Wait(); err != nil {
		t.Errorf("Wait() with nothing submitted = %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Options{Backend: "metal-ish"}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Open(unknown) error = %v, want ErrDeviceUnavailable", err)
	}
}

// fakeProvider stands in for gogpu's GPUContextProvider. Only Device is
// implemented; the remaining DeviceProvider methods panic if called.
type fakeProvider struct {
	gpucontext.DeviceProvider
	device gpucontext.Device
}

func (p fakeProvider) Device() gpucontext.Device { return p.device }

// newWGPUDevice wraps the HAL objects of a noop Device the way gogpu
// exposes its renderer device.
func newWGPUDevice(t *testing.T, d *Device) *wgpu.Device {
	t.Helper()
	halDevice, halQueue := d.HAL()
	dev, err := wgpu.NewDeviceFromHAL(halDevice, halQueue, 0, gputypes.DefaultLimits(), "window")
	if err != nil {
		t.Fatalf("NewDeviceFromHAL failed: %v", err)
	}
	return dev
}

func TestNewFromProvider(t *testing.T) {
	owner := createNoopDevice(t)
	provider := fakeProvider{device: newWGPUDevice(t, owner)}

	d, err := NewFromProvider(provider, Options{})
	if err != nil {
		t.Fatalf("NewFromProvider() error = %v", err)
	}
	if d.owned {
		t.Error("shared device must not be owned")
	}
	wantDev, wantQueue := owner.HAL()
	if dev, q := d.HAL(); dev != wantDev || q != wantQueue {
		t.Error("HAL() does not return the provider's device and queue")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestProviderHAL(t *testing.T) {
	owner := createNoopDevice(t)
	wantDev, wantQueue := owner.HAL()

	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
		ok       bool
	}{
		{"wgpu device", fakeProvider{device: newWGPUDevice(t, owner)}, true},
		{"nil provider", nil, false},
		{"foreign device", fakeProvider{device: "device"}, false},
		{"nil wgpu device", fakeProvider{device: (*wgpu.Device)(nil)}, false},
		{"no device", fakeProvider{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, q, err := providerHAL(tt.provider)
			if !tt.ok {
				if !errors.Is(err, ErrDeviceUnavailable) {
					t.Errorf("error = %v, want ErrDeviceUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if dev != wantDev || q != wantQueue {
				t.Error("unwrapped HAL objects differ from the wrapped ones")
			}
		})
	}
}

func TestNewFromProviderRejects(t *testing.T) {
	if _, err := NewFromProvider(fakeProvider{device: 42}, Options{}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestFrameSubmit(t *testing.T) {
	d := createNoopDevice(t)
	r := newFrameResources(t, d, 8, 4)

	for i := range 3 {
		if err := d.Submit(r.record(t, d, i == 1)); err != nil {
			t.Fatalf("Submit(frame %d) error = %v", i, err)
		}
	}
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if d.submitted != 3 {
		t.Errorf("submission index = %d, want 3", d.submitted)
	}
	if len(d.inFlight) != 0 {
		t.Errorf("%d command buffers still held after Wait", len(d.inFlight))
	}

	pix := make([]byte, gpucore.AlignedBytesPerRow(8, 4)*4)
	if err := d.ReadBuffer(r.staging, 0, pix); err != nil {
		t.Errorf("ReadBuffer() error = %v", err)
	}
}

func TestBindGroupCached(t *testing.T) {
	d := createNoopDevice(t)
	r := newFrameResources(t, d, 8, 4)

	for range 2 {
		if err := d.Submit(r.record(t, d, false)); err != nil {
			t.Fatal(err)
		}
	}
	p := d.pipelines[r.pipeline]
	if len(p.groups) != 1 {
		t.Errorf("cached bind groups = %d, want 1", len(p.groups))
	}

	d.DestroyTexture(r.pairs[0].Texture)
	if len(p.groups) != 0 {
		t.Errorf("bind groups survive texture destruction: %d", len(p.groups))
	}
}

func TestRecordingErrors(t *testing.T) {
	d := createNoopDevice(t)
	r := newFrameResources(t, d, 8, 4)

	tests := []struct {
		name   string
		record func(cb gpucore.CommandBuffer)
		want   error
	}{
		{"draw outside pass", func(cb gpucore.CommandBuffer) {
			cb.DrawPrimitives(0, 1)
		}, gpucore.ErrInvalidCommand},
		{"unknown framebuffer", func(cb gpucore.CommandBuffer) {
			cb.BeginRenderPass(9999, gpucore.Color{})
		}, gpucore.ErrUnknownResource},
		{"pass not ended", func(cb gpucore.CommandBuffer) {
			cb.BeginRenderPass(r.fb, gpucore.Color{})
		}, gpucore.ErrInvalidCommand},
		{"copy inside pass", func(cb gpucore.CommandBuffer) {
			cb.BeginRenderPass(r.fb, gpucore.Color{})
			cb.CopyTextureToBuffer(r.target, r.staging)
			cb.EndRenderPass()
		}, gpucore.ErrInvalidCommand},
		{"wrong uniform size", func(cb gpucore.CommandBuffer) {
			cb.BeginRenderPass(r.fb, gpucore.Color{})
			cb.BindGraphicsPipeline(r.pipeline)
			cb.PushFragmentUniforms(make([]byte, 8))
			cb.EndRenderPass()
		}, gpucore.ErrInvalidCommand},
		{"missing sampler pair", func(cb gpucore.CommandBuffer) {
			cb.BeginRenderPass(r.fb, gpucore.Color{})
			cb.BindGraphicsPipeline(r.pipeline)
			cb.BindFragmentSamplers(0, r.pairs[0])
			cb.DrawPrimitives(0, 1)
			cb.EndRenderPass()
		}, gpucore.ErrInvalidCommand},
		{"present unknown texture", func(cb gpucore.CommandBuffer) {
			cb.QueuePresent(9999, gpucore.Rect{W: 8, H: 4}, gpucore.FilterNearest)
		}, gpucore.ErrUnknownResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, err := d.AcquireCommandBuffer()
			if err != nil {
				t.Fatal(err)
			}
			tt.record(cb)
			if err := d.Submit(cb); !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitTwice(t *testing.T) {
	d := createNoopDevice(t)
	r := newFrameResources(t, d, 8, 4)

	cb := r.record(t, d, false)
	if err := d.Submit(cb); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(cb); !errors.Is(err, gpucore.ErrInvalidCommand) {
		t.Errorf("second Submit() error = %v, want ErrInvalidCommand", err)
	}
}

func TestFramebufferDimensionMismatch(t *testing.T) {
	d := createNoopDevice(t)
	pass, err := d.CreateRenderPass(&gpucore.RenderPassDescriptor{Format: gpucore.TextureFormatRGBA8Unorm})
	if err != nil {
		t.Fatal(err)
	}
	target, err := d.CreateTexture(&gpucore.TextureDescriptor{
		Width: 64, Height: 32, Format: gpucore.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageColorTarget,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.CreateFramebuffer(&gpucore.FramebufferDescriptor{RenderPass: pass, ColorTarget: target, Width: 64, Height: 64})
	if !errors.Is(err, gpucore.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := d.CreateFramebuffer(&gpucore.FramebufferDescriptor{RenderPass: pass, ColorTarget: target, Width: 64, Height: 32}); err != nil {
		t.Errorf("matching framebuffer: %v", err)
	}
}

func TestPipelineRejectsDepth(t *testing.T) {
	d := createNoopDevice(t)
	r := newFrameResources(t, d, 8, 4)
	desc := d.pipelines[r.pipeline].desc
	desc.DepthStencil.DepthTest = true

	if _, err := d.CreateGraphicsPipeline(&desc); !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestReadBufferChecks(t *testing.T) {
	d := createNoopDevice(t)
	vb, err := d.CreateBuffer(&gpucore.BufferDescriptor{Label: "vb", Size: 16, Usage: gpucore.BufferUsageVertex})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ReadBuffer(vb, 0, make([]byte, 16)); err == nil {
		t.Error("ReadBuffer on a non-mappable buffer succeeded")
	}
	if err := d.WriteBuffer(vb, 8, make([]byte, 16)); err == nil {
		t.Error("WriteBuffer past the end succeeded")
	}
	if err := d.ReadBuffer(12345, 0, nil); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("ReadBuffer(unknown) = %v", err)
	}
}

func TestResourceLifecycle(t *testing.T) {
	d := createNoopDevice(t)
	r := newFrameResources(t, d, 8, 4)
	// 2 shaders, pass, target, framebuffer, pipeline, vertices, sampler, 2 textures, staging
	if got := d.Live(); got != 11 {
		t.Fatalf("Live() = %d, want 11", got)
	}

	d.DestroyBuffer(r.staging)
	d.DestroyGraphicsPipeline(r.pipeline)
	d.DestroyFramebuffer(r.fb)
	d.DestroyTexture(r.target)
	d.DestroyRenderPass(r.pass)
	d.DestroyBuffer(r.vertices)
	d.DestroySampler(r.pairs[0].Sampler)
	for _, p := range r.pairs {
		d.DestroyTexture(p.Texture)
	}
	if got := d.Live(); got != 2 {
		t.Errorf("Live() = %d after destroying all but shaders, want 2", got)
	}

	// Destroying twice is a no-op.
	d.DestroyBuffer(r.staging)
}

func TestClosedDevice(t *testing.T) {
	d, err := Open(Options{Backend: BackendNoop})
	if err != nil {
		t.Fatal(err)
	}
	newFrameResources(t, d, 8, 4)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if d.Live() != 0 {
		t.Errorf("Live() = %d after Close", d.Live())
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := d.CreateBuffer(&gpucore.BufferDescriptor{Size: 4}); !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("CreateBuffer after Close = %v, want ErrDeviceClosed", err)
	}
	if _, err := d.AcquireCommandBuffer(); !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("AcquireCommandBuffer after Close = %v, want ErrDeviceClosed", err)
	}
}

// newHALView returns the HAL view of a fresh color texture.
func newHALView(t *testing.T, d *Device) hal.TextureView {
	t.Helper()
	id, err := d.CreateTexture(&gpucore.TextureDescriptor{
		Label: "surface", Width: 8, Height: 4, Format: gpucore.TextureFormatRGBA8Unorm,
		Usage: gpucore.TextureUsageColorTarget,
	})
	if err != nil {
		t.Fatal(err)
	}
	return d.textures[id].view
}

func TestSurfaceView(t *testing.T) {
	d := createNoopDevice(t)
	raw := newHALView(t, d)
	released := wgpu.NewTextureViewFromHAL(newHALView(t, d), nil)
	released.Release()

	tests := []struct {
		name string
		view any
		want hal.TextureView
	}{
		{"wgpu view", wgpu.NewTextureViewFromHAL(raw, newWGPUDevice(t, d)), raw},
		{"hal view", raw, raw},
		{"nil wgpu view", (*wgpu.TextureView)(nil), nil},
		{"released wgpu view", released, nil},
		{"untyped nil", nil, nil},
		{"not a view", "surface", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := surfaceView(tt.view)
			if tt.want == nil {
				if !errors.Is(err, ErrUnsupported) {
					t.Errorf("error = %v, want ErrUnsupported", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Error("surfaceView returned a different HAL view")
			}
		})
	}
}

func TestSetPresentTarget(t *testing.T) {
	d := createNoopDevice(t)
	raw := newHALView(t, d)
	view := wgpu.NewTextureViewFromHAL(raw, newWGPUDevice(t, d))

	if err := d.SetPresentTarget(view, 8, 4, gputypes.TextureFormatBGRA8Unorm); err != nil {
		t.Fatalf("SetPresentTarget(*wgpu.TextureView) error = %v", err)
	}
	if d.present.target != raw {
		t.Error("present target is not the view's HAL view")
	}
	d.ClearPresentTarget()
	if d.present.target != nil {
		t.Error("present target survives ClearPresentTarget")
	}
}

func TestSetPresentTargetRejectsNonView(t *testing.T) {
	d := createNoopDevice(t)
	if err := d.SetPresentTarget("surface", 8, 4, gputypes.TextureFormatBGRA8Unorm); !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
	d.ClearPresentTarget()
}

func TestReadBufferReturnsWrittenBytes(t *testing.T) {
	d := createNoopDevice(t)
	id, err := d.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "readback", Size: 16, Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := d.WriteBuffer(id, 4, want); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
	got := make([]byte, len(want))
	if err := d.ReadBuffer(id, 4, got); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadBuffer() = %v, want %v", got, want)
	}
}

func TestPresentViewport(t *testing.T) {
	tests := []struct {
		name         string
		dst          gpucore.Rect
		w, h         uint32
		x, y, vw, vh float32
		flipX, flipY bool
	}{
		{"identity", gpucore.Rect{W: 8, H: 4}, 8, 4, 0, 0, 8, 4, false, false},
		{"vertical flip", gpucore.Rect{Y: 4, W: 8, H: -4}, 8, 4, 0, 0, 8, 4, false, true},
		{"horizontal flip", gpucore.Rect{X: 8, W: -8, H: 4}, 8, 4, 0, 0, 8, 4, true, false},
		{"clamped", gpucore.Rect{X: -2, Y: 0, W: 20, H: 10}, 8, 4, 0, 0, 8, 4, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, w, h, fx, fy := presentViewport(tt.dst, tt.w, tt.h)
			if x != tt.x || y != tt.y || w != tt.vw || h != tt.vh || fx != tt.flipX || fy != tt.flipY {
				t.Errorf("presentViewport(%+v) = (%v, %v, %v, %v, %v, %v)", tt.dst, x, y, w, h, fx, fy)
			}
		})
	}
}

func TestConvertUsage(t *testing.T) {
	got := convertTextureUsage(gpucore.TextureUsageColorTarget | gpucore.TextureUsageSampled)
	want := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	if got != want {
		t.Errorf("convertTextureUsage = %v, want %v", got, want)
	}
	if convertBufferUsage(gpucore.BufferUsageMapRead|gpucore.BufferUsageCopyDst) !=
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst {
		t.Error("convertBufferUsage mismatch")
	}
	if _, err := convertTextureFormat(0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("convertTextureFormat(0) = %v", err)
	}
}
