/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"

	"github.com/spaghettifunk/retina/engine"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file, watched for changes")
	useVulkan := flag.Bool("vulkan", false, "run the resource table and frame timeline on the first Vulkan 1.2 device")
	validation := flag.Bool("validation", false, "enable the Khronos validation layer, needs -vulkan")
	flag.Parse()

	tb, err := testbed.NewTestGame(*configPath)
	if err != nil {
		core.LogError("failed to create the testbed: %s", err)
		os.Exit(1)
	}
	if *useVulkan {
		tb.UseVulkan(*validation)
	}

	err = engine.RunApplication(tb.Game)
	tb.Close()
	if err != nil {
		core.LogError("testbed exited with an error: %s", err)
		os.Exit(1)
	}
}
