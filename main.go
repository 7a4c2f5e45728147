package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/abennett/rollbot/pkg/dice"
	"github.com/abennett/rollbot/pkg/server"
)

const envPrefix = "ROLLBOT"

func options() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(envPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	}
}

var (
	serveFlags       = flag.NewFlagSet("serve", flag.ExitOnError)
	serveAddr        = serveFlags.String("addr", ":8080", "listen address")
	serveDefaultDice = serveFlags.String("default-dice", server.DefaultDice, "expression rolled when a user joins or sends an empty line")
	serveHistory     = serveFlags.Int("history", server.DefaultHistory, "replies kept per room")
	serveLog         = registerLogFlags(serveFlags)
	_                = serveFlags.String("config", "", "config file (optional)")
)

var serveCmd = &ffcli.Command{
	Name:       "serve",
	ShortUsage: "rollbot serve [flags]",
	ShortHelp:  "run the dice room server",
	FlagSet:    serveFlags,
	Options:    options(),
	Exec:       serve,
}

func serve(ctx context.Context, args []string) error {
	logger, closer, err := serveLog.logger(os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if _, err := dice.New(nil).Evaluate(*serveDefaultDice); err != nil {
		return fmt.Errorf("default dice %q: %w", *serveDefaultDice, err)
	}

	srv := server.NewServer(
		server.WithDefaultDice(*serveDefaultDice),
		server.WithHistory(*serveHistory),
	)
	httpServer := &http.Server{
		Addr:              *serveAddr,
		Handler:           server.NewMux(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", *serveAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var (
	rollFlags  = flag.NewFlagSet("roll", flag.ExitOnError)
	rollSeed   = rollFlags.Uint64("seed", 0, "seed for repeatable rolls, 0 for random")
	rollPretty = rollFlags.Bool("pretty", false, "render markup for the terminal")
	_          = rollFlags.String("config", "", "config file (optional)")
)

var rollCmd = &ffcli.Command{
	Name:       "roll",
	ShortUsage: "rollbot roll [flags] <expression>",
	ShortHelp:  "evaluate a dice expression locally",
	FlagSet:    rollFlags,
	Options:    options(),
	Exec: func(ctx context.Context, args []string) error {
		return runRoll(os.Stdout, os.Stderr, args, *rollSeed, *rollPretty)
	},
}

func runRoll(stdout, stderr io.Writer, args []string, seed uint64, pretty bool) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "a roll argument is required")
		return nil
	}
	src := dice.DefaultSource
	if seed != 0 {
		src = dice.NewSeededSource(seed)
	}
	expr := strings.Join(args, " ")
	out, ok := dice.New(src).Eval(expr)
	if !ok {
		fmt.Fprintf(stderr, "%q is not a dice expression\n", expr)
		return nil
	}
	if pretty {
		out = renderMarkup(out)
	}
	_, err := fmt.Fprintln(stdout, out)
	return err
}

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))
	root := &ffcli.Command{
		ShortUsage: "rollbot <subcommand>",
		Subcommands: []*ffcli.Command{
			rollCmd,
			serveCmd,
			chatCmd,
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := root.ParseAndRun(ctx, os.Args[1:])
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Fatal(err)
	}
}
