package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/gekko3d/manoka"
	"github.com/gekko3d/manoka/voxelrt/rt/app"
	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	debug := flag.Bool("debug", false, "Enable debug logging and periodic frame stats")
	chunks := flag.Int("chunks", 0, "Override max_chunks (regenerates the shader)")
	voxPath := flag.String("vox", "", "MagicaVoxel model to place next to the spheres")
	flag.Parse()

	settings := manoka.DefaultConfig()
	if *configPath != "" {
		var err error
		if settings, err = manoka.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *debug {
		settings.Debug = true
	}
	if *chunks > 0 {
		settings.MaxChunks = *chunks
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(settings.Window.Width, settings.Window.Height, settings.Window.Title, nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, settings)
	if err := application.Init(); err != nil {
		panic(err)
	}
	defer application.Release()

	populate(application, *voxPath)
	if err := application.Renderer.Warm(); err != nil {
		application.Logger.Errorf("%v", err)
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})

	// Input callbacks
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if application.MouseCaptured {
			cx, cy := float64(settings.Window.Width/2), float64(settings.Window.Height/2)
			application.Camera.Yaw += float32(xpos-cx) * application.Camera.Sensitivity
			application.Camera.Pitch -= float32(ypos-cy) * application.Camera.Sensitivity
			application.Camera.Pitch = mgl32.Clamp(application.Camera.Pitch, -1.55, 1.55)
			w.SetCursorPos(cx, cy)
		}
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyTab && action == glfw.Press {
			application.MouseCaptured = !application.MouseCaptured
			if application.MouseCaptured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
		if key == glfw.KeyF3 && action == glfw.Press {
			application.Logger.SetDebug(!application.Logger.DebugEnabled())
		}
		// Toggle the first instance to exercise visibility changes.
		if key == glfw.KeyH && action == glfw.Press && len(application.Scene.Instances) > 0 {
			inst := application.Scene.Instances[0]
			inst.Hidden = !inst.Hidden
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		moveCamera(window, application.Camera)
		application.Update()
		application.Render()
	}
}

// populate lays out the demo scene lit by one sun: the optional vox model, a
// solid box, a cone, then debug spheres filling what is left of max_chunks.
// Nothing beyond that capacity is spawned, so every frame fits.
func populate(a *app.App, voxPath string) {
	budget := a.Settings.MaxChunks
	spawn := func(id core.AssetId, pos mgl32.Vec3) bool {
		if budget == 0 {
			return false
		}
		budget--
		a.Scene.Spawn(id, core.NewTransformAt(pos))
		return true
	}

	if voxPath != "" {
		// Loads in the background; its instance renders once ready.
		spawn(a.Assets.LoadVoxAsync(voxPath, nil), mgl32.Vec3{-80, 0, 0})
	}
	spawn(a.Assets.CreateChunk(volume.SolidBox([3]int{8, 8, 0}, [3]int{55, 55, 20}, mgl32.Vec3{0.8, 0.7, 0.5})), mgl32.Vec3{0, 80, -24})
	spawn(a.Assets.CreateChunk(volume.Cone(mgl32.Vec3{32, 32, 0}, mgl32.Vec3{32, 32, 60}, 24, mgl32.Vec3{0.3, 0.8, 0.4})), mgl32.Vec3{-80, 80, -24})

	if budget > 0 {
		sphere := a.Assets.CreateChunk(volume.DebugSphere())
		for i := 0; spawn(sphere, mgl32.Vec3{float32(i) * 72, 0, 0}); i++ {
		}
	}

	a.Scene.AddSun(&core.SunLight{
		Color:       core.LinearRGBA([4]uint8{255, 244, 214, 255}),
		Illuminance: 10,
		Transform:   core.LookingAlong(mgl32.Vec3{-0.4, 0.3, -1}.Normalize()),
	})
}

func moveCamera(w *glfw.Window, cam *core.CameraState) {
	// Speed is per second at 60 fps.
	forward := cam.GetForward().Mul(1.0 / 60)
	right := cam.GetRight().Mul(1.0 / 60)
	if w.GetKey(glfw.KeyW) == glfw.Press {
		cam.Position = cam.Position.Add(forward.Mul(cam.Speed))
	}
	if w.GetKey(glfw.KeyS) == glfw.Press {
		cam.Position = cam.Position.Sub(forward.Mul(cam.Speed))
	}
	if w.GetKey(glfw.KeyD) == glfw.Press {
		cam.Position = cam.Position.Add(right.Mul(cam.Speed))
	}
	if w.GetKey(glfw.KeyA) == glfw.Press {
		cam.Position = cam.Position.Sub(right.Mul(cam.Speed))
	}
}
