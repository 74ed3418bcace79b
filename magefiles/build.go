//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Vets and builds every engine package.
func (Build) Engine() error {
	if _, err := goCmd("vet", []string{"./..."}, cgo()); err != nil {
		return err
	}
	_, err := goCmd("build", []string{"./..."}, cgo())
	return err
}

// Builds the testbed binary into bin/.
func (Build) Testbed() error {
	mg.Deps(Build.Engine)
	_, err := goCmd("build", []string{"-o", "bin/retina", "."}, cgo())
	return err
}
