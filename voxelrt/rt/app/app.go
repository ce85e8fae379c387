package app

import (
	"fmt"

	"github.com/gekko3d/manoka"
	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/gpu"
	"github.com/gekko3d/manoka/voxelrt/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	Settings manoka.Config
	Logger   *core.DefaultLogger

	GPU      *gpu.WGPUDevice
	View     *gpu.ViewPass
	Assets   *manoka.AssetServer
	Renderer *manoka.ChunkRenderer
	Scene    *core.Scene
	Camera   *core.CameraState
	Profiler *Profiler

	ClearColor    wgpu.Color
	Tick          uint64
	MouseCaptured bool

	StatsTime float64
}

func NewApp(window *glfw.Window, settings manoka.Config) *App {
	logger := core.NewDefaultLogger(settings.LogPrefix, settings.Debug)
	return &App{
		Window:     window,
		Settings:   settings,
		Logger:     logger,
		Assets:     manoka.NewAssetServer(logger.Sub("assets")),
		Scene:      core.NewScene(),
		Camera:     core.NewCameraState(),
		Profiler:   NewProfiler(),
		ClearColor: wgpu.Color{R: 0.02, G: 0.02, B: 0.03, A: 1},
	}
}

func (a *App) Init() error {
	// WebGPU Init
	a.Instance = wgpu.CreateInstance(nil)

	surface := a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))
	a.Surface = surface

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	// Binding arrays are lowered to flat bindings, which needs more storage
	// buffers per stage than the defaults allow.
	a.Device, err = adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "Main Device",
		RequiredLimits: gpu.RequiredLimits(a.Settings.MaxChunks),
	})
	if err != nil {
		return fmt.Errorf("requesting device for max_chunks=%d: %w", a.Settings.MaxChunks, err)
	}
	a.Queue = a.Device.GetQueue()

	// Config
	width, height := a.Window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, a.Device, a.Config)

	// Shaders
	code, err := shaders.DirectLightingWGSL(a.Settings.MaxChunks)
	if err != nil {
		return err
	}
	a.GPU = gpu.NewWGPUDevice(a.Device, a.Settings.MaxChunks, a.Logger.Sub("gpu"))
	if err := a.GPU.CreatePipeline(code); err != nil {
		return err
	}

	viewCode, err := shaders.ChunkViewWGSL(a.Settings.MaxChunks)
	if err != nil {
		return err
	}
	a.View, err = gpu.NewViewPass(a.GPU, viewCode, a.Config.Format, a.Logger.Sub("view"))
	if err != nil {
		return err
	}

	a.Renderer, err = manoka.NewChunkRenderer(a.GPU, a.Assets, a.Settings, a.Logger.Sub("render"))
	if err != nil {
		return err
	}
	a.Renderer.OnPrepared(a.View.Capture)
	a.Logger.Infof("renderer ready: max_chunks=%d layout=%s", a.Settings.MaxChunks, a.Settings.ChunkLayout)
	return nil
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
	}
}

func (a *App) aspect() float32 {
	if a.Config != nil && a.Config.Height > 0 {
		return float32(a.Config.Width) / float32(a.Config.Height)
	}
	return 1
}

// Update refreshes instance visibility from the camera frustum.
func (a *App) Update() {
	aspect := a.aspect()
	a.Profiler.BeginScope("cull")
	a.Scene.Commit(a.Camera.Frustum(aspect))
	a.Profiler.EndScope("cull")
	a.Profiler.SetCount("cull depth", a.Scene.CullDepth)
}

// Render lights the visible chunks and presents the surface. An aborted
// frame is logged by the renderer and skipped here.
func (a *App) Render() {
	a.Tick++
	stats, err := a.Renderer.RenderFrame(a.Tick, a.Scene)
	a.Profiler.Observe("prepare", stats.PrepareTime)
	a.Profiler.Observe("dispatch", stats.DispatchTime)
	a.Profiler.SetCount("chunks", stats.Chunks)
	a.Profiler.SetCount("skipped", stats.Skipped)
	if err != nil {
		a.Profiler.SetCount("aborted", a.Profiler.Counts["aborted"]+1)
		a.View.Clear()
	}

	a.present()
	a.Profiler.EndFrame()

	now := glfw.GetTime()
	if now-a.StatsTime >= 1.0 {
		if a.Logger.DebugEnabled() {
			a.Logger.Debugf("\n%s", a.Profiler.GetStatsString())
		}
		a.Profiler.Reset()
		a.StatsTime = now
	}
}

func (a *App) present() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Logger.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Logger.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Logger.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}
	defer encoder.Release()

	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: a.ClearColor,
		}},
	})
	a.Profiler.BeginScope("view")
	a.View.Draw(rPass, gpu.ViewCamera{
		ViewProj:   a.Camera.GetProjectionMatrix(a.aspect()).Mul4(a.Camera.GetViewMatrix()),
		Eye:        a.Camera.Position,
		Background: [4]float32{float32(a.ClearColor.R), float32(a.ClearColor.G), float32(a.ClearColor.B), 1},
	})
	a.Profiler.EndScope("view")
	if err := rPass.End(); err != nil {
		a.Logger.Errorf("Render pass End failed: %v", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Logger.Errorf("Encoder Finish failed: %v", err)
		return
	}
	defer cmd.Release()
	a.Queue.Submit(cmd)
	a.Surface.Present()
}

func (a *App) Release() {
	if a.Renderer != nil {
		a.Renderer.Release()
	}
	if a.View != nil {
		a.View.Release()
	}
	if a.GPU != nil {
		a.GPU.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
