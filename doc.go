// Package hexgrid runs a fixed-timestep render loop that draws a
// full-screen hexagon-grid shader and captures frames to PNG on request.
//
// # Overview
//
// An App ties four parts together:
//   - internal/registry creates every GPU object once from a Config
//   - internal/timestep decouples wall-clock polling from the fixed update rate
//   - internal/frame records and submits one command sequence per drawn frame
//   - internal/capture copies a frame to a staging buffer and saves it on a worker
//
// The device is any gpucore.Device. backend/native implements it on
// gogpu/wgpu; gpucore/gputest provides a recording fake for tests.
//
// # Quick Start
//
//	device, err := native.Open(native.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := hexgrid.New(device, hexgrid.NewConfig(hexgrid.WithSize(1280, 720)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	app.Queue().Push(input.KeyDown(gpucontext.KeySpace)) // capture the next frame
//	_ = app.Run(ctx)
//
// # Loop
//
// Each iteration arms a pending capture, drains the input queue, advances
// the scheduler and draws at most once. Quit events and context
// cancellation end Run; Close joins the capture worker before releasing
// resources.
package hexgrid

// Version is the module version.
const Version = "0.1.0"
