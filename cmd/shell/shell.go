package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Mmx233/QRcon/client"
	cmdhistory "github.com/Mmx233/QRcon/cmd/history"
	"github.com/Mmx233/QRcon/cmd/profile"
	store "github.com/Mmx233/QRcon/history"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var Cmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive console",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "shell-cmd").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := profile.Connect(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	session := runner.Session()
	out := cmd.OutOrStdout()

	read := lineReader(profile.Stdin)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		read = prompt
		pterm.Info.WithWriter(out).Printfln("connected to %s, type :help for builtins", session.Connection().RemoteAddr())
	}

	sh := &Shell{
		Read:  read,
		Run:   runner.Run,
		Alive: func() bool { return session.State() != client.StateClosed },
		Out:   out,
	}
	if s := runner.History(); s != nil {
		sh.History = s.Recent
	}

	err = sh.Loop(ctx)
	logger.Debug().Err(err).Msg("shell finished")
	return err
}

func prompt() (string, error) {
	return pterm.DefaultInteractiveTextInput.
		WithDefaultText("rcon").
		Show()
}

func lineReader(r *bufio.Reader) func() (string, error) {
	return func() (string, error) {
		line, err := r.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

// Shell is a read, run, print loop over one session.
type Shell struct {
	// Read returns the next input line, or io.EOF.
	Read func() (string, error)
	Run  func(ctx context.Context, command string) (profile.Result, error)
	// Alive reports whether the session can still take commands.
	Alive func() bool
	// History lists recent entries, nil when history is off.
	History func(ctx context.Context, n int) ([]store.Entry, error)
	Out     io.Writer
}

// Loop runs until :quit, end of input, ctx cancellation or loss of the session.
func (s *Shell) Loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := s.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			quit, err := s.builtin(ctx, line)
			if err != nil {
				pterm.Error.WithWriter(s.Out).Println(err)
			}
			if quit {
				return nil
			}
			continue
		}

		result, err := s.Run(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if s.Alive != nil && !s.Alive() {
				return fmt.Errorf("session lost: %w", err)
			}
			pterm.Error.WithWriter(s.Out).Println(err)
			continue
		}
		fmt.Fprintln(s.Out, result.Response)
	}
}

func (s *Shell) builtin(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":exit", ":q":
		return true, nil
	case ":help":
		fmt.Fprintln(s.Out, ":history [n]  show recent commands")
		fmt.Fprintln(s.Out, ":quit         close the session")
		return false, nil
	case ":history":
		if s.History == nil {
			return false, errors.New("history is disabled")
		}
		n := 20
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				return false, fmt.Errorf("invalid count %q", fields[1])
			}
			n = v
		}
		entries, err := s.History(ctx, n)
		if err != nil {
			return false, err
		}
		return false, cmdhistory.Print(s.Out, entries, false)
	default:
		return false, fmt.Errorf("unknown builtin %s", fields[0])
	}
}
