package main

import (
	"os"

	"github.com/hedisam/supervise/cmd/supervise/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
