package testbed

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spaghettifunk/retina/engine"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
	"github.com/spaghettifunk/retina/engine/systems"
)

// particle buffers are replaced this often to exercise deferred frees
const particleRefreshFrames = 60

const particleCount = 1024

type frameConstants struct {
	Frame       uint64
	Time        float32
	Width       uint32
	Height      uint32
	SamplerSlot uint32
	ImageSlot   uint32
	Particles   uint32
}

type particle struct {
	Position [3]float32
	Life     float32
}

type TestGame struct {
	*engine.Game

	vulkan *vulkanBackend
}

type gameState struct {
	engine *engine.Engine

	sampler   resources.SamplerResource
	albedo    resources.SampledImageResource
	constants []resources.ShaderResource[*resources.TypedBuffer[frameConstants]]
	particles resources.ShaderResource[*resources.TypedBuffer[particle]]

	elapsed       time.Duration
	width, height uint32
	uploads       int
}

// NewTestGame builds the demo game. An empty configPath runs with the default
// configuration for 600 frames.
func NewTestGame(configPath string) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ConfigPath:   configPath,
			QueueLatency: 2 * time.Millisecond,
			State:        &gameState{},
		},
	}
	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	if g.Config != nil && g.ConfigPath == "" && g.Config.Application.Frames == 0 {
		g.Config.Application.Frames = 600
	}
	if g.vulkan != nil {
		return g.bootVulkan()
	}
	return nil
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	s := g.state()
	s.engine = e
	table := e.Systems().Renderer.Table()

	var err error
	if s.sampler, err = table.MakeSampler(metadata.DefaultSamplerCreateInfo("linear-repeat")); err != nil {
		return err
	}
	if s.albedo, err = table.MakeSampledImage(metadata.ImageCreateInfo{
		Name:   "albedo",
		Width:  256,
		Height: 256,
		Layers: 1,
		Levels: 1,
		Format: metadata.ImageFormatR8G8B8A8Srgb,
		Usage:  metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
	}); err != nil {
		return err
	}

	framesInFlight := int(e.Config().Frame.FramesInFlight)
	if s.constants, err = resources.MakeBuffers[frameConstants](table, framesInFlight, metadata.BufferCreateInfo{
		Name:     "frame-constants",
		Count:    1,
		Location: metadata.MemoryLocationHost,
	}); err != nil {
		return err
	}

	if s.particles, err = g.makeParticles(table, 0); err != nil {
		return err
	}
	core.LogInfo("testbed resources: sampler slot %d, image slot %d, %d constant buffers, particles slot %d",
		s.sampler.Handle(), s.albedo.Handle(), len(s.constants), s.particles.Handle())
	return nil
}

// makeParticles creates a particle buffer and fills it on the upload workers.
func (g *TestGame) makeParticles(table *resources.ShaderResourceTable, seed uint64) (resources.ShaderResource[*resources.TypedBuffer[particle]], error) {
	s := g.state()
	res, err := resources.MakeBuffer[particle](table, metadata.BufferCreateInfo{
		Name:     fmt.Sprintf("particles-%d", seed),
		Count:    particleCount,
		Location: metadata.MemoryLocationHost,
	})
	if err != nil {
		return res, err
	}

	values := make([]particle, particleCount)
	for i := range values {
		angle := float64(i) / particleCount * 2 * math.Pi
		values[i] = particle{
			Position: [3]float32{float32(math.Cos(angle)), float32(seed % 7), float32(math.Sin(angle))},
			Life:     1,
		}
	}

	buffer, err := table.ShareStorageBuffer(res.Ref())
	if err != nil {
		return res, err
	}
	defer buffer.Reset()

	err = systems.Upload(s.engine.Systems().UploadSystem, buffer, 0, values, func(err error) {
		if err != nil {
			core.LogError("particle upload failed: %s", err.Error())
		}
	})
	if err != nil {
		return res, err
	}
	s.uploads++
	return res, nil
}

func (g *TestGame) Update(deltaTime time.Duration) error {
	g.state().elapsed += deltaTime
	return nil
}

func (g *TestGame) Render(frame *renderer.Frame) error {
	s := g.state()

	if frame.SignalValue%particleRefreshFrames == 0 {
		next, err := g.makeParticles(frame.Table, frame.SignalValue)
		if err != nil {
			return err
		}
		// The device may still read the old buffer until this frame retires.
		frame.Free(s.particles.Ref())
		s.particles = next
	}

	constants := frameConstants{
		Frame:       frame.SignalValue,
		Time:        float32(s.elapsed.Seconds()),
		Width:       s.width,
		Height:      s.height,
		SamplerSlot: s.sampler.Handle(),
		ImageSlot:   s.albedo.Handle(),
		Particles:   s.particles.Handle(),
	}
	target := s.constants[frame.Index].Resource()
	if err := target.Write(0, constants); err != nil {
		return err
	}

	// The queue checks the constants this frame was recorded with.
	frame.Record(func() error {
		got, err := target.Read(0, 1)
		if err != nil {
			return err
		}
		if got[0].Frame != constants.Frame {
			return fmt.Errorf("frame %d constants were overwritten by frame %d", constants.Frame, got[0].Frame)
		}
		return nil
	})

	if frame.SignalValue%100 == 0 {
		fps, frameTime := s.engine.Metrics().FPS(), s.engine.Metrics().FrameTime()
		core.LogDebug("frame %d: %.1f fps, %.3f ms/frame, table %v", frame.SignalValue, fps, frameTime, frame.Table.Stats())
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width = width
	s.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	core.LogInfo("shutting down testbed after %d particle uploads", s.uploads)
	if s.engine == nil {
		return nil
	}
	s.engine.Systems().UploadSystem.Wait()

	var errs []error
	if s.sampler.IsValid() {
		errs = append(errs, s.sampler.Destroy())
	}
	if s.albedo.IsValid() {
		errs = append(errs, s.albedo.Destroy())
	}
	for i := range s.constants {
		errs = append(errs, s.constants[i].Destroy())
	}
	if s.particles.IsValid() {
		errs = append(errs, s.particles.Destroy())
	}
	return errors.Join(errs...)
}
