// persona-e2e runs the Persona end-to-end suite.
package main

import (
	"os"

	"github.com/kuitang/persona-e2e/internal/cli"
	"github.com/kuitang/persona-e2e/internal/obs"
)

func main() {
	obs.Init()
	os.Exit(cli.ExitCode(cli.Execute()))
}
