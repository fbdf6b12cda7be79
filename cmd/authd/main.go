// Command authd serves the authcore HTTP API and carries its maintenance
// commands.
//
//	authd [-config authd.yaml] [-env .env] [-dev] <command>
//
// Commands:
//
//	serve            apply migrations, then serve /api/v1 until SIGINT/SIGTERM
//	migrate          apply database migrations and exit
//	prune            delete SQL refresh records past their retention window
//	bootstrap-admin  -email addr: create or promote an administrator
//
// Settings come from the YAML file, then the dotenv file, then AUTHD_*
// environment variables. -dev replaces Redis with an in-process miniredis.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/MrEthical07/authcore/internal/appconfig"
)

// Version information, set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
)

const usage = `usage: authd [flags] <command> [command flags]

commands:
  serve            apply migrations and serve the HTTP API
  migrate          apply database migrations
  prune            delete expired refresh records (sql refresh store)
  bootstrap-admin  create or promote an administrator

flags:
`

// env is what run needs from the process; tests substitute it.
type env struct {
	stdout       io.Writer
	readPassword func(prompt string) (string, error)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], env{stdout: os.Stdout, readPassword: promptPassword})
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, e env) error {
	fs := flag.NewFlagSet("authd", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	configPath := fs.String("config", os.Getenv("AUTHD_CONFIG"), "YAML config file")
	envFile := fs.String("env", ".env", "dotenv file; ignored when missing")
	dev := fs.Bool("dev", false, "use an in-process Redis instead of redis.addr")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := appconfig.Load(*configPath, *envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := appconfig.NewLogger(cfg.Logging, version)

	opts := appOptions{config: cfg, logger: logger, dev: *dev}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "serve":
		logger.Info("starting authd", "version", version, "commit", commit)
		return serve(ctx, opts)
	case "migrate":
		return migrate(ctx, opts, e.stdout)
	case "prune":
		return prune(ctx, opts, e.stdout)
	case "bootstrap-admin":
		return bootstrapAdmin(ctx, opts, rest, e)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// promptPassword reads without echo from a terminal, or one line from a pipe.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
