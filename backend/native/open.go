//go:build !nogpu

package native

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/hexgrid/gpucore"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Backend names accepted by Options.Backend.
const (
	BackendVulkan = "vulkan"
	BackendNoop   = "noop"
)

// Options configures a Device.
type Options struct {
	// Backend selects the HAL backend for Open. Empty means Vulkan.
	Backend string

	// PresentMode is the requested present mode. FIFO is always supported.
	PresentMode gpucore.PresentMode
}

// Open creates an instance on the selected backend, picks an adapter
// (discrete or integrated GPU first) and opens a device the returned
// Device owns.
func Open(opts Options) (*Device, error) {
	instance, err := createInstance(opts.Backend)
	if err != nil {
		return nil, err
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", ErrDeviceUnavailable)
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %v", ErrDeviceUnavailable, err)
	}

	d, err := NewDevice(openDev.Device, openDev.Queue, opts)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true

	slogger().Info("native: device opened",
		"backend", backendName(opts.Backend), "adapter", selected.Info.Name,
		"present_mode", opts.PresentMode.String())
	return d, nil
}

func backendName(name string) string {
	if name == "" {
		return BackendVulkan
	}
	return strings.ToLower(name)
}

func createInstance(name string) (hal.Instance, error) {
	switch backendName(name) {
	case BackendNoop:
		api := noop.API{}
		instance, err := api.CreateInstance(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: create noop instance: %v", ErrDeviceUnavailable, err)
		}
		return instance, nil
	case BackendVulkan:
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("%w: vulkan backend not available", ErrDeviceUnavailable)
		}
		instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err != nil {
			return nil, fmt.Errorf("%w: create instance: %v", ErrDeviceUnavailable, err)
		}
		return instance, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrDeviceUnavailable, name)
	}
}

// NewFromProvider wraps the device of a gogpu window, as returned by
// App.GPUContextProvider. The provider keeps ownership of the device.
func NewFromProvider(provider gpucontext.DeviceProvider, opts Options) (*Device, error) {
	device, queue, err := providerHAL(provider)
	if err != nil {
		return nil, err
	}
	d, err := NewDevice(device, queue, opts)
	if err != nil {
		return nil, err
	}
	slogger().Info("native: using shared device", "present_mode", opts.PresentMode.String())
	return d, nil
}

// providerHAL returns the HAL device and queue behind provider's
// *wgpu.Device.
func providerHAL(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	if provider == nil {
		return nil, nil, fmt.Errorf("%w: no device provider", ErrDeviceUnavailable)
	}
	dev, ok := provider.Device().(*wgpu.Device)
	if !ok || dev == nil {
		return nil, nil, fmt.Errorf("%w: provider device %T is not a *wgpu.Device", ErrDeviceUnavailable, provider.Device())
	}
	device, queue := dev.HalDevice(), dev.HalQueue()
	if device == nil || queue == nil {
		return nil, nil, fmt.Errorf("%w: provider device has no HAL backing", ErrDeviceUnavailable)
	}
	return device, queue, nil
}
