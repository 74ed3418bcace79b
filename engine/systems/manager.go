package systems

import (
	"time"

	"github.com/spaghettifunk/retina/engine/renderer"
)

type SystemManagerConfig struct {
	Renderer renderer.RendererConfig
	Upload   UploadSystemConfig
}

type SystemManager struct {
	Renderer     *renderer.Renderer
	UploadSystem *UploadSystem
}

func NewSystemManager(config SystemManagerConfig) (*SystemManager, error) {
	r, err := renderer.New(config.Renderer)
	if err != nil {
		return nil, err
	}
	us, err := NewUploadSystem(config.Upload)
	if err != nil {
		_ = r.Shutdown()
		return nil, err
	}
	return &SystemManager{
		Renderer:     r,
		UploadSystem: us,
	}, nil
}

func (sm *SystemManager) DrawFrame(delta time.Duration, render func(frame *renderer.Frame) error) error {
	return sm.Renderer.DrawFrame(delta, render)
}

// OnResize waits for pending uploads and rebuilds the frame timeline.
func (sm *SystemManager) OnResize(width, height uint32) error {
	sm.UploadSystem.Wait()
	return sm.Renderer.Recreate()
}

// Shutdown stops the upload workers before the renderer so no job outlives
// the resource table.
func (sm *SystemManager) Shutdown() error {
	if err := sm.UploadSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.Renderer.Shutdown(); err != nil {
		return err
	}
	return nil
}
