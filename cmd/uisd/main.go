// Command uisd is the Unified Input Service daemon entrypoint.
package main

import (
	"os"

	"github.com/malivvan/uis/cmd/cli"
)

var version = "dev"

func main() {
	if err := cli.New(version).Execute(); err != nil {
		os.Exit(1)
	}
}
