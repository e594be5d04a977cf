package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DMChat/data/database/mgo/mongoutil"
	"DMChat/global/config"
	"DMChat/logger"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var checkTimeout = 5 * time.Second

type contextKey int

const contextKeyConfig contextKey = iota

func getConfig(ctx *cli.Context) *config.AppConfig {
	return ctx.Context.Value(contextKeyConfig).(*config.AppConfig)
}

func prepareApp(ctx *cli.Context) error {
	conf, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	config.SetCurrent(conf)
	config.ApplyRuntime(conf)
	ctx.Context = context.WithValue(ctx.Context, contextKeyConfig, conf)
	return nil
}

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Run the chat server",
	Before: prepareApp,
	Action: func(ctx *cli.Context) error {
		conf := getConfig(ctx)
		if err := conf.Validate(); err != nil {
			return err
		}
		sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := NewApp(sigCtx, conf)
		if err != nil {
			return err
		}
		if path := ctx.String("config"); path != "" {
			if err := config.Watch(sigCtx, path, config.ApplyRuntime); err != nil {
				logger.Warn("config watch disabled", zap.Error(err))
			}
		}
		runErr := app.Run(sigCtx)

		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Close(cctx); err != nil {
			logger.Error("close failed", zap.Error(err))
		}
		return runErr
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Inspect the effective configuration",
	Subcommands: []*cli.Command{
		{
			Name:   "print",
			Usage:  "Print the merged configuration with secrets masked",
			Before: prepareApp,
			Action: func(ctx *cli.Context) error {
				out, err := getConfig(ctx).Redacted().YAML()
				if err != nil {
					return err
				}
				_, err = ctx.App.Writer.Write(out)
				return err
			},
		},
		{
			Name:   "check",
			Usage:  "Validate the configuration, ping mongo when a mongo backend is selected, and exit",
			Before: prepareApp,
			Action: func(ctx *cli.Context) error {
				conf := getConfig(ctx)
				if err := conf.Validate(); err != nil {
					return err
				}
				if conf.UsesMongo() {
					cctx, cancel := context.WithTimeout(ctx.Context, checkTimeout)
					defer cancel()
					if err := mongoutil.Check(cctx, mongoConfig(conf)); err != nil {
						return err
					}
				}
				_, err := fmt.Fprintln(ctx.App.Writer, "config ok")
				return err
			},
		},
	},
}

func main() {
	app := &cli.App{
		Name:  "dmchat",
		Usage: "Direct-messaging backend with live presence",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"DMCHAT_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			configCommand,
		},
	}
	defer logger.Sync()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}
