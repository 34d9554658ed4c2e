package gpucore

import "errors"

// Device errors.
var (
	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrDimensionMismatch is returned when a framebuffer does not match its color target.
	ErrDimensionMismatch = errors.New("gpucore: framebuffer dimensions do not match color target")

	// ErrInvalidCommand is returned by Submit when recording was out of order.
	ErrInvalidCommand = errors.New("gpucore: invalid command sequence")

	// ErrDeviceClosed is returned for any call after Close.
	ErrDeviceClosed = errors.New("gpucore: device closed")
)

// Device creates GPU resources and executes recorded command buffers.
//
// Implementations must be safe for concurrent use: the capture worker calls
// Wait and ReadBuffer while the render loop records and submits.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type Device interface {
	// CreateShaderModule creates a shader module from SPIR-V words.
	CreateShaderModule(desc *ShaderModuleDescriptor) (ShaderModuleID, error)
	DestroyShaderModule(id ShaderModuleID)

	// CreateTexture creates a 2D texture with a single mip level.
	CreateTexture(desc *TextureDescriptor) (TextureID, error)
	// WriteTexture uploads tightly packed texel rows covering the whole texture.
	WriteTexture(id TextureID, data []byte) error
	DestroyTexture(id TextureID)

	CreateSampler(desc *SamplerDescriptor) (SamplerID, error)
	DestroySampler(id SamplerID)

	CreateBuffer(desc *BufferDescriptor) (BufferID, error)
	WriteBuffer(id BufferID, offset uint64, data []byte) error
	// ReadBuffer copies buffer contents into dst. The buffer must have been
	// created with BufferUsageMapRead and all writes to it must have completed.
	ReadBuffer(id BufferID, offset uint64, dst []byte) error
	DestroyBuffer(id BufferID)

	CreateRenderPass(desc *RenderPassDescriptor) (RenderPassID, error)
	DestroyRenderPass(id RenderPassID)

	// CreateFramebuffer fails with ErrDimensionMismatch when the descriptor
	// size differs from the color target's size.
	CreateFramebuffer(desc *FramebufferDescriptor) (FramebufferID, error)
	DestroyFramebuffer(id FramebufferID)

	CreateGraphicsPipeline(desc *GraphicsPipelineDescriptor) (GraphicsPipelineID, error)
	DestroyGraphicsPipeline(id GraphicsPipelineID)

	// AcquireCommandBuffer starts recording a new command buffer.
	AcquireCommandBuffer() (CommandBuffer, error)

	// Submit hands a recorded command buffer to the GPU queue and returns
	// without waiting. Recording errors surface here.
	Submit(cb CommandBuffer) error

	// Wait blocks until every submitted command buffer has completed.
	Wait() error

	// Close waits for the GPU and releases the device. Resources still
	// alive are released with it.
	Close() error
}

// BufferBinding binds a vertex buffer at an offset.
type BufferBinding struct {
	Buffer BufferID
	Offset uint64
}

// TextureSamplerBinding pairs a texture with the sampler used to read it.
type TextureSamplerBinding struct {
	Texture TextureID
	Sampler SamplerID
}

// CommandBuffer records GPU work for one frame.
//
// Methods do not return errors. The first recording error is retained and
// reported by Device.Submit, which also discards the buffer.
type CommandBuffer interface {
	// BeginRenderPass starts a pass rendering into fb, clearing it to clear.
	BeginRenderPass(fb FramebufferID, clear Color)

	BindGraphicsPipeline(p GraphicsPipelineID)

	// PushFragmentUniforms sets the fragment uniform block for following draws.
	PushFragmentUniforms(data []byte)

	BindVertexBuffers(first uint32, bindings ...BufferBinding)

	BindFragmentSamplers(first uint32, bindings ...TextureSamplerBinding)

	// DrawPrimitives draws primitiveCount primitives of the bound pipeline's
	// primitive type starting at vertexStart.
	DrawPrimitives(vertexStart, primitiveCount uint32)

	EndRenderPass()

	// CopyTextureToBuffer copies the whole of src into dst using rows padded
	// to AlignedBytesPerRow. Must be recorded outside a render pass.
	CopyTextureToBuffer(src TextureID, dst BufferID)

	// QueuePresent blits src into the presentation surface inside dst.
	// A negative dst height flips the image vertically.
	QueuePresent(src TextureID, dst Rect, filter Filter)
}
