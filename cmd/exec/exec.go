package exec

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mmx233/QRcon/cmd/profile"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	jsonOutput bool

	Cmd = &cobra.Command{
		Use:   "exec command [command...]",
		Short: "Log in and run commands, printing each response",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExec,
	}
)

func init() {
	Cmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func runExec(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "exec-cmd").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := profile.Connect(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	results, runErr := runner.RunAll(ctx, args)
	if runErr != nil {
		failed := results[len(results)-1]
		logger.Error().Err(runErr).Str("command", failed.Command).Msg("command failed")
	}

	if err := writeResults(cmd.OutOrStdout(), results, jsonOutput); err != nil {
		return err
	}
	return runErr
}

func writeResults(w io.Writer, results []profile.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		if _, err := fmt.Fprintln(w, r.Response); err != nil {
			return err
		}
	}
	return nil
}
