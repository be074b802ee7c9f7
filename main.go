package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AnthonyCampos1234/Facsimile/pkg/cli"
)

func main() {
	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Message)
		os.Exit(err.Code)
	}
}
