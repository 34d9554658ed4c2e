// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package window runs a hexgrid App inside a gogpu window.
//
// The window's device is shared with the App through
// native.NewFromProvider, so the frame's color target is blitted straight
// onto the swapchain image gogpu acquired for the current OnDraw.
//
//	gogpu.App.OnDraw -> hexgrid.App.Step -> native present -> Window
//
// # Usage
//
//	cfg, _ := hexgrid.LoadConfig("hexgrid.yaml")
//	if err := window.Run(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Key presses and releases are forwarded to the App's input queue; Space
// captures the next frame. Closing the window quits the loop and joins
// any pending capture before the device goes away.
package window
