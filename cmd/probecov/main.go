package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/probecov/cmd/probecov/app"
)

func main() {
	if err := app.NewProbecovCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
