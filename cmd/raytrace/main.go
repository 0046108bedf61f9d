package main

import (
	"os"

	"github.com/vkngwrapper/accel/cmd/raytrace/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
