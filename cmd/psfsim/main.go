package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/psfsim/internal/version"
)

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "psfsim %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

// errUnknownCommand is returned for a subcommand that does not exist.
var errUnknownCommand = errors.New("unknown command")

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	switch command {
	case "convolve":
		return runConvolve(ctx, args, out)
	case "align":
		return runAlign(ctx, args, out)
	case "fit":
		return runFit(ctx, args, out)
	case "kernel":
		return runKernel(ctx, args, out)
	case "history":
		return runHistory(args, out)
	case "report":
		return runReport(args, out)
	case "serve":
		return runServe(ctx, args, out)
	case "migrate":
		return runMigrate(args, out)
	case "version":
		fmt.Fprintf(out, "psfsim %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return nil
	case "help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("%w: %s", errUnknownCommand, command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `psfsim - depth and angle dependent blur simulation

Usage: psfsim <command> [options]

Commands:
  convolve   Convolve a colour+depth frame with the aberration PSFs
  align      Fit the ellipse of a stack PSF and print its alignment
  fit        Fit the parametric kernel to a stack PSF
  kernel     Render a kernel preset as images and a profile plot
  history    List recorded runs and fits
  report     Write the run history as an HTML page
  serve      Serve the history report, JSON API and admin routes over HTTP
  migrate    Manage the run history schema (up, down, status, version, force)
  version    Show psfsim version
  help       Show this help message

Common Flags:
  --config <file>   Simulation config (JSON); built-in defaults when omitted
  --db <file>       Run history database; overrides output.database

Run 'psfsim <command> -h' for the flags of a command.`)
}
