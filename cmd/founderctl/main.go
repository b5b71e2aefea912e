package main

import (
	"fmt"
	"os"

	"github.com/foundernet/engine/internal/cli"
	"github.com/foundernet/engine/pkg/logger"
)

func main() {
	err := cli.NewRootCommand().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
