package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Mmx233/QRcon/cmd/profile"
	"github.com/Mmx233/QRcon/config"
	store "github.com/Mmx233/QRcon/history"
	jsoniter "github.com/json-iterator/go"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	limit      int
	jsonOutput bool

	Cmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded commands, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
)

func init() {
	Cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show, 0 for all")
	Cmd.Flags().BoolVar(&jsonOutput, "json", false, "print entries as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Disabled {
		return fmt.Errorf("history is disabled in %s", profile.ConfigFile())
	}

	s, err := store.Open(cfg.History.Path, cfg.History.Limit)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	return Print(cmd.OutOrStdout(), entries, jsonOutput)
}

// loadConfig reads the config file when present and falls back to defaults.
func loadConfig() (*config.Client, error) {
	if _, err := os.Stat(profile.ConfigFile()); err == nil {
		return config.LoadClientConfig(profile.ConfigFile())
	}
	cfg := &config.Client{}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Print renders entries as a table, or as JSON.
func Print(w io.Writer, entries []store.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no history")
		return err
	}

	data := pterm.TableData{{"ID", "Time", "Server", "Command", "Took", "Result"}}
	for _, e := range entries {
		result := firstLine(e.Response)
		if e.Error != "" {
			result = pterm.Red(e.Error)
		}
		data = append(data, []string{
			fmt.Sprint(e.ID),
			e.CreatedAt.Local().Format(time.DateTime),
			e.Server,
			e.Command,
			e.Duration.String(),
			result,
		})
	}

	return pterm.DefaultTable.
		WithHasHeader().
		WithWriter(w).
		WithData(data).
		Render()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
