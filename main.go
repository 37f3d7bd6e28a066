// The main package for the entityproc executable.
package main

import (
	"github.com/registrar-data/entityproc/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
