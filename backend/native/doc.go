// Package native implements gpucore.Device on the gogpu/wgpu HAL.
//
// Open creates its own instance and device on the Vulkan backend (or the
// noop backend for tests); NewFromProvider borrows the device of a gogpu
// window. Resources are tracked in ID-keyed maps, command buffers encode
// directly into HAL encoders, and QueuePresent blits the color target onto
// the window surface set with SetPresentTarget.
//
// At most one frame is in flight: AcquireCommandBuffer waits for the
// previous submission before recording starts.
//
// Building with -tags nogpu leaves only the logging hooks.
package native
