// Command terrasight is the TerraSight-Intelligence command-line interface.
package main

import (
	"os"

	"github.com/turtacn/TerraSight-Intelligence/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
