//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with the sample configuration, reloading it on change.
func (Run) Testbed() error {
	_, err := goCmd("run", []string{".", "-config", "retina.toml"}, cgo())
	return err
}

// Runs the testbed on the first Vulkan 1.2 device with validation enabled.
func (Run) Vulkan() error {
	_, err := goCmd("run", []string{".", "-config", "retina.toml", "-vulkan", "-validation"}, cgo())
	return err
}
