// Command entitybridge hosts sandboxed extensions against a local content
// backend and drives entities through their publishing lifecycle.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/entitybridge/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
