package main

import (
	"context"
	"os"

	"liveassist/internal/cli"
	"liveassist/internal/output"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		output.NewRenderer(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
