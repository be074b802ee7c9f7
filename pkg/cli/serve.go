package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/connector"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/server"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

type serveConfig struct {
	addr               string
	authToken          string
	dropDir            string
	dropOwner          string
	pubsubProject      string
	pubsubSubscription string
}

func serveCommand() *cli.Command {
	var (
		cfg   appConfig
		serve serveConfig
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP listen address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("FACSIMILE_ADDR"),
			Destination: &serve.addr,
		},
		&cli.StringFlag{
			Name:        "auth-token",
			Usage:       "Bearer token required on API requests; disabled when empty",
			Sources:     cli.EnvVars("FACSIMILE_AUTH_TOKEN"),
			Destination: &serve.authToken,
		},
		&cli.StringFlag{
			Name:        "drop-dir",
			Usage:       "Directory watched for record files",
			Sources:     cli.EnvVars("FACSIMILE_DROP_DIR"),
			Destination: &serve.dropDir,
		},
		&cli.StringFlag{
			Name:        "drop-owner",
			Usage:       "Owner of records placed in the drop directory. Empty reads <drop-dir>/<owner>/ subdirectories",
			Sources:     cli.EnvVars("FACSIMILE_DROP_OWNER"),
			Destination: &serve.dropOwner,
		},
		&cli.StringFlag{
			Name:        "pubsub-project",
			Usage:       "Google Cloud project of the push subscription",
			Sources:     cli.EnvVars("FACSIMILE_PUBSUB_PROJECT"),
			Destination: &serve.pubsubProject,
		},
		&cli.StringFlag{
			Name:        "pubsub-subscription",
			Usage:       "Pub/Sub subscription delivering provider payloads",
			Sources:     cli.EnvVars("FACSIMILE_PUBSUB_SUBSCRIPTION"),
			Destination: &serve.pubsubSubscription,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with background ingestion",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			return runServe(ctx, p, serve)
		},
	}
}

func runServe(ctx context.Context, p *pipeline, serve serveConfig) error {
	logger := logging.From(ctx)

	var drop *connector.DropDir
	if serve.dropDir != "" {
		d, err := connector.NewDropDir(serve.dropDir, model.OwnerID(serve.dropOwner), p.worker, nil)
		if err != nil {
			return err
		}
		drop = d
	}

	var sub *connector.Subscriber
	if serve.pubsubSubscription != "" {
		if serve.pubsubProject == "" {
			return goerr.New("pubsub-project is required with pubsub-subscription")
		}
		s, err := connector.NewSubscriber(ctx, serve.pubsubProject, serve.pubsubSubscription, p.worker)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		sub = s
	}

	api := server.New(p.ingest, p.answer, p.lifecycle,
		server.WithQueue(p.worker),
		server.WithAuthToken(serve.authToken),
	)
	httpServer := &http.Server{
		Addr:              serve.addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gCtx := errgroup.WithContext(ctx)
	p.start(gCtx)

	if drop != nil {
		g.Go(func() error { return drop.Watch(gCtx) })
	}
	if sub != nil {
		g.Go(func() error { return sub.Run(gCtx) })
	}

	g.Go(func() error {
		logger.Info("http server started", "addr", serve.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "http server failed", goerr.V("addr", serve.addr))
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
