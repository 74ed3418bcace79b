package engine

import (
	"time"

	"github.com/spaghettifunk/retina/engine/config"
	"github.com/spaghettifunk/retina/engine/renderer"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
	"github.com/spaghettifunk/retina/engine/renderer/timeline"
)

type Game struct {
	Config *config.Config
	// ConfigPath, when set, is watched and reloaded on change.
	ConfigPath string

	// Optional device side collaborators. Headless ones are used when nil.
	Device           resources.Device
	SemaphoreFactory timeline.SemaphoreFactory
	QueueLatency     time.Duration

	State        interface{}
	FnBoot       Boot
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Boot func() error
type Initialize func(e *Engine) error
type Update func(deltaTime time.Duration) error
type Render func(frame *renderer.Frame) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
