package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/connector"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/server"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/ingest"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func chatCommand() *cli.Command {
	var (
		cfg    appConfig
		owner  string
		inputs []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "owner",
			Aliases:     []string{"o"},
			Usage:       "Owner ID the session acts for",
			Value:       "local",
			Sources:     cli.EnvVars("FACSIMILE_OWNER"),
			Destination: &owner,
		},
		&cli.StringSliceFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Record file to ingest before chatting (.eml, .gmail.json, .gcal.json, .email.json, .event.json, .transaction.json)",
			Destination: &inputs,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions about your records interactively",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			p, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()
			p.start(ctx)

			w := c.Root().Writer
			if w == nil {
				w = os.Stdout
			}

			if len(inputs) > 0 {
				n, err := ingestFiles(ctx, p.ingest, model.OwnerID(owner), inputs)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Ingested %d of %d files.\n", n, len(inputs))
			}

			session := &chatSession{
				owner:     model.OwnerID(owner),
				answerer:  p.answer,
				lifecycle: p.lifecycle,
				w:         w,
			}
			return session.run(ctx)
		},
	}
}

type fileIngester interface {
	Ingest(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error)
}

// ingestFiles ingests paths concurrently and returns how many were
// inserted. A file that cannot be used is reported and skipped; any other
// failure aborts.
func ingestFiles(ctx context.Context, ingester fileIngester, owner model.OwnerID, paths []string) (int, error) {
	logger := logging.From(ctx)
	inserted := make([]bool, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			source, payload, err := connector.ReadFile(path, nil)
			if err != nil {
				if errors.Is(err, model.ErrMalformedSourceData) {
					logger.Warn("skip unusable file", "path", path, "error", err)
					return nil
				}
				return err
			}

			result, err := ingester.Ingest(ctx, owner, source, payload)
			switch {
			case errors.Is(err, model.ErrMalformedSourceData):
				logger.Warn("skip malformed record", "path", path, "error", err)
				return nil
			case err != nil:
				return goerr.Wrap(err, "failed to ingest file", goerr.V("path", path))
			case result.Skipped:
				logger.Info("record skipped", "path", path, "reason", result.Reason)
			default:
				inserted[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for _, ok := range inserted {
		if ok {
			n++
		}
	}
	return n, nil
}

type chatSession struct {
	owner     model.OwnerID
	answerer  server.Answerer
	lifecycle server.Lifecycle
	w         io.Writer
	// spin is replaced in tests
	spin func(w io.Writer) func()
}

func startSpinner(w io.Writer) func() {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " thinking..."
	s.Start()
	return s.Stop
}

const chatHelp = `Commands:
  /mode              show the privacy mode for new records
  /mode <mode>       set the privacy mode (raw, anonymized)
  /logout            drop every indexed record
  /delete            drop every indexed record and the privacy setting
  /quit              leave
`

func (s *chatSession) run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return goerr.Wrap(err, "failed to initialize readline")
	}
	defer rl.Close()

	fmt.Fprintf(s.w, "Chat session started for %s. Type /help for commands.\n", s.owner)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		quit, err := s.handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			break
		}
	}

	fmt.Fprintf(s.w, "\nChat session completed\n")
	return nil
}

// handle processes one line of input. Errors a user can act on are printed;
// only unexpected ones are returned.
func (s *chatSession) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if strings.HasPrefix(line, "/") {
		return s.command(ctx, strings.Fields(line))
	}

	spin := s.spin
	if spin == nil {
		spin = startSpinner
	}
	stop := spin(s.w)
	resp, err := s.answerer.Answer(ctx, s.owner, line)
	stop()

	switch {
	case model.IsRetryable(err):
		fmt.Fprintf(s.w, "Service unavailable, try again later.\n")
		return false, nil
	case err != nil:
		return false, goerr.Wrap(err, "failed to answer")
	}

	fmt.Fprintf(s.w, "%s\n", resp.Text)
	if len(resp.Used) > 0 || resp.Dropped > 0 {
		fmt.Fprintf(s.w, "(%d records used, %d unreadable)\n", len(resp.Used), resp.Dropped)
	}
	return false, nil
}

func (s *chatSession) command(ctx context.Context, args []string) (bool, error) {
	switch args[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprint(s.w, chatHelp)

	case "/mode":
		if len(args) == 1 {
			mode, err := s.lifecycle.Mode(ctx, s.owner)
			if err != nil {
				return false, err
			}
			fmt.Fprintf(s.w, "Privacy mode: %s\n", mode)
			return false, nil
		}
		mode := model.PrivacyMode(strings.ToLower(args[1]))
		if err := s.lifecycle.SetMode(ctx, s.owner, mode); err != nil {
			if errors.Is(err, model.ErrInvalidPrivacyMode) {
				fmt.Fprintf(s.w, "Unknown mode %q: use raw or anonymized\n", args[1])
				return false, nil
			}
			return false, err
		}
		fmt.Fprintf(s.w, "Privacy mode set to %s for new records\n", mode)

	case "/logout":
		n, err := s.lifecycle.Logout(ctx, s.owner)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.w, "Logged out, %d records dropped\n", n)

	case "/delete":
		n, err := s.lifecycle.DeleteData(ctx, s.owner)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.w, "Deleted %d records and the privacy setting\n", n)

	default:
		fmt.Fprintf(s.w, "Unknown command %s\n", args[0])
		fmt.Fprint(s.w, chatHelp)
	}
	return false, nil
}
