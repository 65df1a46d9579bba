package main

import (
	"fmt"
	"os"

	"github.com/ishaqmohammed8765-png/flipscan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
