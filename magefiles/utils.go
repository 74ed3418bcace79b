//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
)

// goTool is a single go toolchain invocation.
type goTool struct {
	args  []string
	env   []string
	quiet bool
}

type goToolOption func(*goTool)

// cgo builds with cgo, needed by every package that links the Vulkan loader.
func cgo() goToolOption {
	return func(t *goTool) {
		t.env = append(t.env, "CGO_ENABLED=1")
	}
}

// quiet keeps the output unless the step fails or mage runs with -v.
func quiet() goToolOption {
	return func(t *goTool) {
		t.quiet = true
	}
}

// goCmd runs `go <subcommand> <args>` and returns what it printed.
func goCmd(subcommand string, args []string, options ...goToolOption) (string, error) {
	t := &goTool{args: append([]string{subcommand}, args...)}
	for _, o := range options {
		o(t)
	}

	line := "go " + strings.Join(t.args, " ")
	fmt.Printf("[retina] %s\n", line)
	started := time.Now()

	cmd := exec.Command("go", t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	var out bytes.Buffer
	echo := !t.quiet || mg.Verbose()
	if echo {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	if err := cmd.Run(); err != nil {
		if !echo {
			fmt.Fprintf(os.Stderr, "[retina] %s failed:\n%s", line, out.String())
		}
		return out.String(), fmt.Errorf("go %s: %w", subcommand, err)
	}
	fmt.Printf("[retina] go %s finished in %s\n", subcommand, time.Since(started).Round(time.Millisecond))
	return out.String(), nil
}
