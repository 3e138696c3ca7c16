// Command vexctl drives the VEX Market backend from a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/account"
	"github.com/rexlx/vexmarket/internal/config"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/logging"
	"github.com/rexlx/vexmarket/internal/session"
)

// env is what every command gets.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	gw      *gateway.Gateway
	session *session.Store
	account *account.Service
	out     io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"register": {"register -first NAME -last NAME -email EMAIL -pass PASSWORD", cmdRegister},
	"whoami":   {"whoami -email EMAIL -pass PASSWORD", cmdWhoami},
	"search":   {"search [-q TEXT] [-zip ZIP] [-page N]", cmdSearch},
	"listing":  {"listing -id ID", cmdListing},
	"mine":     {"mine -email EMAIL -pass PASSWORD", cmdMine},
	"chats":    {"chats -email EMAIL -pass PASSWORD", cmdChats},
	"history":  {"history -email EMAIL -pass PASSWORD -chat ID [-all]", cmdHistory},
	"send":     {"send -email EMAIL -pass PASSWORD -chat ID -m TEXT", cmdSend},
	"location": {"location [-zip ZIP | -detect LAT,LONG | -clear]", cmdLocation},
	"watch":    {"watch -email EMAIL -pass PASSWORD", cmdWatch},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: vexctl [-api URL] [-socket URL] [-profile NAME] <command> [flags]")
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(w, "  "+commands[n].usage)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fs := flag.NewFlagSet("vexctl", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.Usage = func() { usage(fs.Output()) }
	_ = fs.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, found := commands[fs.Arg(0)]
	if !found {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", fs.Arg(0))
		usage(os.Stderr)
		os.Exit(2)
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, JSON: cfg.LogJSON})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	gw, err := gateway.New(cfg.APIBaseURL,
		gateway.WithLogger(logger),
		gateway.WithThrottle(gateway.NewThrottle(cfg.RateRPS, cfg.RateBurst)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sess := session.New(gw, logger)
	e := &env{
		cfg:     cfg,
		logger:  logger,
		gw:      gw,
		session: sess,
		account: account.NewService(gw, sess),
		out:     os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, e, fs.Args()[1:]); err != nil {
		var ve *internal.ValidationError
		if errors.As(err, &ve) {
			for _, p := range ve.Problems {
				fmt.Fprintln(os.Stderr, "  -", p)
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// credentials adds -email and -pass to fs.
func credentials(fs *flag.FlagSet) (email, pass *string) {
	return fs.String("email", os.Getenv("VEX_EMAIL"), "account email"),
		fs.String("pass", os.Getenv("VEX_PASSWORD"), "account password")
}

// signIn logs in for commands that need a session.
func (e *env) signIn(ctx context.Context, email, pass string) error {
	if err := e.account.Login(ctx, email, pass); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	return nil
}

func stamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("Jan 2 15:04")
}
