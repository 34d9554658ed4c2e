// Package gpucore defines the device contract used by the hexgrid frame engine.
//
// The engine never talks to a graphics API directly. Resources are created
// through a [Device] and referred to by opaque IDs; per-frame work is
// recorded into a [CommandBuffer] and handed back to the device for
// submission. Two implementations exist:
//   - backend/native: gogpu/wgpu HAL (Vulkan, or the noop backend in tests)
//   - gpucore/gputest: an in-memory recorder for engine tests
//
// # Architecture
//
//	               +------------------+
//	               |   frame engine   |
//	               | (registry/frame) |
//	               +--------+---------+
//	                        |
//	                 gpucore.Device
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +---------v--------+
//	|  backend/native |          |  gpucore/gputest |
//	|  (wgpu HAL)     |          |  (recorder)      |
//	+-----------------+          +------------------+
//
// # Pipeline state
//
// A graphics pipeline is described by one [GraphicsPipelineDescriptor]
// composed of independent, immutable sub-states. Named preset functions
// such as [ColorBlendDisabled] and [RasterizerCullCounterClockwise] return
// fresh values that callers may adjust before composing.
//
// # Resource lifecycle
//
// IDs start at 1; [InvalidID] (zero) never names a resource. Destroying an
// unknown ID is a no-op. A destroyed ID is never reused.
package gpucore
