//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every test with the race detector.
func (Test) All() error {
	_, err := goCmd("test", []string{"-race", "-count=1", "./..."}, cgo())
	return err
}

// Runs the tests of one package, e.g. `mage test:package ./engine/renderer/timeline`.
func (Test) Package(pkg string) error {
	_, err := goCmd("test", []string{"-race", "-count=1", "-v", pkg}, cgo())
	return err
}

// Runs the tests without printing them unless one fails.
func (Test) Quiet() error {
	_, err := goCmd("test", []string{"-count=1", "./..."}, cgo(), quiet())
	return err
}
