package engine

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spaghettifunk/retina/engine/config"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer"
	"github.com/spaghettifunk/retina/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// suspended engines poll their events at this interval
const suspendedPollInterval = 10 * time.Millisecond

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	config        *config.Config
	isRunning     bool
	isSuspended   bool
	events        *core.EventSystem
	watcher       *config.Watcher
	systemManager *systems.SystemManager
	width         uint32
	height        uint32
	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      time.Duration
	frames        uint64
}

func New(g *Game) (*Engine, error) {
	if g == nil {
		return nil, errors.New("engine requires a game")
	}
	cfg := g.Config
	if cfg == nil {
		if g.ConfigPath != "" {
			var err error
			if cfg, err = config.Load(g.ConfigPath); err != nil {
				return nil, err
			}
		} else {
			cfg = config.Default()
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g.Config = cfg

	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       core.NewEventSystem(core.DefaultEventQueueSize),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		isRunning:    true,
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, e.onConfigReloaded)

	timeout, err := e.config.Frame.Timeout()
	if err != nil {
		return err
	}
	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		Renderer: renderer.RendererConfig{
			Name:             e.config.Application.Name,
			FramesInFlight:   e.config.Frame.FramesInFlight,
			WaitTimeout:      timeout,
			Device:           e.gameInstance.Device,
			SemaphoreFactory: e.gameInstance.SemaphoreFactory,
			QueueLatency:     e.gameInstance.QueueLatency,
			Table:            e.config.ShaderResourceTableConfig(e.gameInstance.Device),
		},
		Upload: systems.UploadSystemConfig{
			Workers:   max(1, runtime.NumCPU()/2),
			QueueSize: 64,
		},
	})
	if err != nil {
		return err
	}
	e.systemManager = sm

	if e.gameInstance.ConfigPath != "" {
		w, err := config.NewWatcher(config.WatcherConfig{
			Path: e.gameInstance.ConfigPath,
			OnChange: func(cfg *config.Config) {
				if err := e.events.Fire(core.EventContext{Type: core.EVENT_CODE_CONFIG_RELOADED, Data: cfg}); err != nil {
					core.LogWarn("dropped config reload: %s", err.Error())
				}
			},
		})
		if err != nil {
			return err
		}
		e.watcher = w
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.events.Dispatch()
		if !e.isRunning {
			break
		}
		if e.isSuspended {
			time.Sleep(suspendedPollInterval)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err.Error())
				return err
			}
		}

		render := e.gameInstance.FnRender
		if render == nil {
			render = func(*renderer.Frame) error { return nil }
		}
		if err := e.systemManager.DrawFrame(delta, render); err != nil {
			core.LogError("Game render failed, shutting down: %s", err.Error())
			return err
		}

		e.metrics.Update(time.Since(frameStart), e.systemManager.Renderer.TimelineDifference())
		e.frames++
		if limit := e.config.Application.Frames; limit > 0 && e.frames >= limit {
			core.LogInfo("rendered %d frames, stopping", e.frames)
			e.isRunning = false
		}

		e.lastTime = currentTime
	}

	fps, frameTime := e.metrics.FPS(), e.metrics.FrameTime()
	core.LogInfo("ran %d frames: %.1f fps, %.3f ms/frame, host at most %d frames ahead",
		e.metrics.TotalFrames(), fps, frameTime, e.metrics.MaxTimelineDifference())
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
		e.systemManager = nil
	}
	errs = append(errs, e.events.Shutdown())
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

// Stop asks the engine to quit at the start of the next frame. Safe to call
// from any goroutine.
func (e *Engine) Stop() {
	if err := e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT}); err != nil {
		core.LogWarn("failed to queue quit event: %s", err.Error())
	}
}

// Resize queues a framebuffer size change. Safe to call from any goroutine.
func (e *Engine) Resize(width, height uint32) error {
	return e.events.Fire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.ResizeEvent{Width: width, Height: height},
	})
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Config() *config.Config {
	return e.config
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) Systems() *systems.SystemManager {
	return e.systemManager
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) IsSuspended() bool {
	return e.isSuspended
}

func (e *Engine) onEvent(context core.EventContext) {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
	}
}

func (e *Engine) onResized(context core.EventContext) {
	se, ok := context.Data.(*core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	width, height := se.Width, se.Height
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.systemManager.OnResize(width, height); err != nil {
		core.LogError("failed to recreate the renderer: %s", err)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize failed: %s", err)
		}
	}
}

func (e *Engine) onConfigReloaded(context core.EventContext) {
	cfg, ok := context.Data.(*config.Config)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogError("ignoring reloaded config: %s", err)
		return
	}
	e.config.Log = cfg.Log
	e.config.Application.Frames = cfg.Application.Frames

	if cfg.Frame != e.config.Frame || cfg.Table != e.config.Table {
		core.LogWarn("frame and table settings only apply after a restart")
	}
	core.LogInfo("applied reloaded config: log level %s", cfg.Log.Level)
}
