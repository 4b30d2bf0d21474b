// webvfs runs a single filesystem command against a persistent virtual
// filesystem and exits. State lives in the configured storage backend, so
// successive invocations see each other's changes:
//
//	webvfs --storage bolt://vfs.db mkdir -p /srv/www
//	echo hello | webvfs --storage bolt://vfs.db write /srv/www/index.html
//	webvfs --storage bolt://vfs.db ls /srv/www
//
// The serve command keeps the filesystem open and exposes it over HTTP until
// interrupted:
//
//	webvfs --storage bolt://vfs.db --address :8080 serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/adapter"
	"github.com/objectfs/webvfs/internal/config"
	"github.com/objectfs/webvfs/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		storageURI string
		logLevel   string
		address    string
		opts       options
	)

	flagSet := pflag.NewFlagSet("webvfs", pflag.ContinueOnError)
	flagSet.SetInterspersed(true)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	flagSet.StringVar(&storageURI, "storage", "", "storage URI overriding the configured backend (memory://, bolt://path, s3://bucket/prefix)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	flagSet.StringVar(&address, "address", "", "API listen address for serve (default: the configured address)")
	flagSet.StringVar(&opts.cwd, "cwd", "", "working directory for relative paths (default: the home directory)")
	flagSet.BoolVarP(&opts.recursive, "recursive", "r", false, "operate on directories recursively (rm, cp)")
	flagSet.BoolVarP(&opts.parents, "parents", "p", false, "create missing parent directories (mkdir)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	serving := flagSet.Arg(0) == serveCommand
	if serving {
		if flagSet.NArg() != 1 {
			return fmt.Errorf("usage: webvfs %s", commandTable[serveCommand].usage)
		}
		cfg.API.Enabled = true
		if address != "" {
			cfg.API.Address = address
		}
	}
	// one-shot commands stay quiet unless asked
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	} else if configPath == "" && !serving {
		cfg.Logging.Level = "WARN"
	}
	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := adapter.New(ctx, storageURI, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if serving {
		logger.Info("serving filesystem", zap.String("address", cfg.API.Address))
		<-ctx.Done()
		return nil
	}

	cli := newCommands(a.FileSystem(), os.Stdin, os.Stdout, opts)
	return cli.execute(ctx, flagSet.Args())
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `webvfs - run a command against a persistent virtual filesystem.

Usage:
  webvfs [flags] <command> [arguments]

Commands:
%s
Flags:
%s`, commandHelp(), flagSet.FlagUsages())
}
