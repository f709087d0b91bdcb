package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/marketpack/marketpack/pkg/cli"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.ExecuteWithVersion(version); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "📦 [marketpack] Error: %v\n", err)
		os.Exit(1)
	}
}
