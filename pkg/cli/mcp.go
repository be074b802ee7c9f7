package cli

import (
	"context"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg   appConfig
		owner string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "owner",
			Aliases:     []string{"o"},
			Usage:       "Owner ID the MCP session acts for",
			Value:       "local",
			Sources:     cli.EnvVars("FACSIMILE_OWNER"),
			Destination: &owner,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve ask, ingest_record, set_privacy_mode and forget_me as MCP tools over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			p, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()
			p.start(ctx)

			srv := mcp.New(model.OwnerID(owner), p.ingest, p.answer, p.lifecycle, c.Root().Version)
			return srv.Run(ctx)
		},
	}
}
