package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martinvidela/chatforge/internal/domain/model"
	"github.com/martinvidela/chatforge/internal/infra/config"
	"github.com/martinvidela/chatforge/internal/infra/sqlite"
	"github.com/martinvidela/chatforge/internal/server"
	"github.com/martinvidela/chatforge/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("chatforge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}
	if *showHelp {
		printHelp(out)
		return 0
	}

	if fs.Arg(0) == "serve" || fs.Arg(0) == "" {
		if err := serve(); err != nil {
			slog.Error("server failed", "error", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(out, "unknown command %q\n", fs.Arg(0)) //nolint:errcheck
	printHelp(out)
	return 2
}

func serve() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := sqlite.Bootstrap(db); err != nil {
		return err
	}
	if err := model.NewService(db).Seed(context.Background(), cfg.ModelSeedPath); err != nil {
		return err
	}

	srv, err := server.New(db, *cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		slog.Info("received signal", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func printHelp(out io.Writer) {
	helpText := `chatforge - multi-provider AI chat server

Usage:
  chatforge [options] [command]

Options:
  --version    Show version information
  --help       Show this help message

Commands:
  serve        Start the server (default)

Examples:
  chatforge --version
  chatforge serve`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}
