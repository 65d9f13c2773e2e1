// Command teammesh runs supervisor/worker agent teams defined in YAML.
package main

import (
	"os"

	"github.com/hupe1980/teammesh/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
