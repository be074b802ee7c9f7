package cli

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

// Version is set at build time.
var Version = "dev"

func Run(ctx context.Context, argv []string) *Error {
	// a missing .env is not an error
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:    "facsimile",
		Usage:   "Privacy-aware personal context pipeline",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
