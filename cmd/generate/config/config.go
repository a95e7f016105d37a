package config

import (
	"fmt"
	"os"

	"github.com/Mmx233/QRcon/examples"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	format     string // --format flag value
	outputFile string // --output flag value

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate a client configuration file",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&format, "format", "f", "yaml", "config format, yaml or toml")
	Cmd.Flags().StringVarP(&outputFile, "output", "o", "", "output config file path (default config.<format>)")
}

// Template returns the embedded template for format.
func Template(format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return examples.ClientConfig()
	case "toml":
		return examples.ClientConfigTOML()
	default:
		return nil, fmt.Errorf("unsupported format %q, want yaml or toml", format)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "generate").Logger()

	content, err := Template(format)
	if err != nil {
		return err
	}

	outputPath := outputFile
	if outputPath == "" {
		outputPath = "config." + format
	}

	// Check if file exists
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file already exists: %s", outputPath)
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logger.Info().Str("file", outputPath).Msg("generated client configuration")
	return nil
}
