package hexgrid

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/hexgrid/gpucore"
	"github.com/gogpu/hexgrid/internal/capture"
	"github.com/gogpu/hexgrid/internal/registry"
	"github.com/gogpu/hexgrid/internal/timestep"
)

// ErrInvalidConfig is returned by Config.Validate and wraps every
// configuration problem.
var ErrInvalidConfig = errors.New("hexgrid: invalid config")

// Defaults used by DefaultConfig.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	DefaultStep   = 10 * time.Millisecond
	DefaultTitle  = "hexgrid"
)

// ShaderSource names a shader file and its entry point.
type ShaderSource struct {
	Path  string `yaml:"path"`
	Entry string `yaml:"entry,omitempty"`
}

// Config describes the window, the loop and the assets of an App.
type Config struct {
	Title  string `yaml:"title"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`

	// Step is the fixed update interval.
	Step time.Duration `yaml:"step"`
	// MaxFrameTime clamps the wall time fed to the scheduler per iteration.
	MaxFrameTime time.Duration `yaml:"max_frame_time"`

	PresentMode string `yaml:"present_mode"`
	Backend     string `yaml:"backend"`

	// MaxFrames stops Run after that many drawn frames. Zero means no limit.
	MaxFrames uint64 `yaml:"max_frames,omitempty"`

	CapturePath string `yaml:"capture_path"`

	VertexShader   ShaderSource `yaml:"vertex_shader"`
	FragmentShader ShaderSource `yaml:"fragment_shader"`
	Textures       []string     `yaml:"textures"`
}

// DefaultConfig returns a 1280×720 window stepping at 100 Hz with the
// bundled hexagon-grid assets.
func DefaultConfig() Config {
	return Config{
		Title:          DefaultTitle,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		Step:           DefaultStep,
		MaxFrameTime:   timestep.DefaultMaxFrameTime,
		PresentMode:    gpucore.PresentModeFIFO.String(),
		Backend:        "vulkan",
		CapturePath:    capture.DefaultPath,
		VertexShader:   ShaderSource{Path: "assets/passthrough.wgsl", Entry: "vs_main"},
		FragmentShader: ShaderSource{Path: "assets/hexagon_grid.wgsl", Entry: "fs_main"},
		Textures:       []string{"assets/woodgrain.png", "assets/noise.png"},
	}
}

// Option modifies a Config.
//
// Example:
//
//	cfg := hexgrid.NewConfig(
//	    hexgrid.WithSize(640, 480),
//	    hexgrid.WithCapturePath("out/frame.png"),
//	)
type Option func(*Config)

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	return cfg.With(opts...)
}

// With returns a copy of c with opts applied.
func (c Config) With(opts ...Option) Config {
	c.Textures = append([]string(nil), c.Textures...)
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithTitle sets the window title.
func WithTitle(title string) Option {
	return func(c *Config) { c.Title = title }
}

// WithSize sets the window and render target size.
func WithSize(width, height uint32) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithStep sets the fixed update interval.
func WithStep(step time.Duration) Option {
	return func(c *Config) { c.Step = step }
}

// WithMaxFrameTime sets the per-iteration frame time clamp.
func WithMaxFrameTime(d time.Duration) Option {
	return func(c *Config) { c.MaxFrameTime = d }
}

// WithPresentMode sets the requested present mode.
func WithPresentMode(m gpucore.PresentMode) Option {
	return func(c *Config) { c.PresentMode = m.String() }
}

// WithBackend selects the device backend by name ("vulkan" or "noop").
func WithBackend(name string) Option {
	return func(c *Config) { c.Backend = name }
}

// WithMaxFrames stops Run after n drawn frames.
func WithMaxFrames(n uint64) Option {
	return func(c *Config) { c.MaxFrames = n }
}

// WithCapturePath sets where captured frames are written.
func WithCapturePath(path string) Option {
	return func(c *Config) { c.CapturePath = path }
}

// WithAssets replaces the shader and texture files.
func WithAssets(vertex, fragment ShaderSource, textures ...string) Option {
	return func(c *Config) {
		c.VertexShader = vertex
		c.FragmentShader = fragment
		c.Textures = append([]string(nil), textures...)
	}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.Step <= 0:
		return fmt.Errorf("%w: step %v must be positive", ErrInvalidConfig, c.Step)
	case c.MaxFrameTime < c.Step:
		return fmt.Errorf("%w: max frame time %v is below step %v", ErrInvalidConfig, c.MaxFrameTime, c.Step)
	case len(c.Textures) != registry.TextureCount:
		return fmt.Errorf("%w: %d textures, want %d", ErrInvalidConfig, len(c.Textures), registry.TextureCount)
	case c.VertexShader.Path == "" || c.FragmentShader.Path == "":
		return fmt.Errorf("%w: shader path not set", ErrInvalidConfig)
	}
	if _, err := gpucore.ParsePresentMode(c.PresentMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Mode returns the parsed present mode, FIFO if it does not parse.
func (c Config) Mode() gpucore.PresentMode {
	m, _ := gpucore.ParsePresentMode(c.PresentMode)
	return m
}

func (c Config) descriptor() registry.Descriptor {
	return registry.Descriptor{
		Width:    c.Width,
		Height:   c.Height,
		Vertex:   registry.Stage{Path: c.VertexShader.Path, EntryPoint: c.VertexShader.Entry},
		Fragment: registry.Stage{Path: c.FragmentShader.Path, EntryPoint: c.FragmentShader.Entry},
		Textures: c.Textures,
	}
}
