package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trigate/trigate/pkg/cli"
	"github.com/trigate/trigate/pkg/verify"
)

var (
	verbose      bool
	jsonOutput   bool
	formatOutput string
	outputFile   string
	contextName  string
)

var rootCmd = &cobra.Command{
	Use:   "trigate",
	Short: "Tri-modal biometric authentication gate",
	Long: `trigate — face, voice, and lipsync authentication over a single
camera and microphone session.

Commands:
  ctx       Context configuration management (service URLs, policy, archive)
  serve     Run the authentication gate server
  status    Check scoring service health
  profiles  List enrolled profiles
  account   Account management against a running server
  version   Version information

Examples:
  trigate ctx add dev --service-url http://localhost:8000 && trigate ctx use dev
  trigate serve
  trigate profiles
  trigate account create alice s3cret fenny`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "json", "structured output format: json, yaml")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file path")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name (default: current context)")
}

func loadConfig() (*cli.Config, error) {
	if path := os.Getenv("TRIGATE_CONFIG"); path != "" {
		return cli.LoadConfigWithPath("trigate", path)
	}
	return cli.LoadConfig("trigate")
}

// resolveContext loads config and returns the context selected by the
// --context flag, or the current context when the flag is empty.
func resolveContext() (*cli.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.ResolveContext(contextName)
}

// newVerifyClient builds a scoring services client from the context.
func newVerifyClient(ctx *cli.Context) (*verify.Client, error) {
	if ctx.ServiceURL == "" {
		return nil, fmt.Errorf("context %q has no service_url", ctx.Name)
	}
	var opts []verify.Option
	if ctx.Timeout > 0 {
		opts = append(opts, verify.WithTimeout(time.Duration(ctx.Timeout)*time.Second))
	}
	if ctx.MaxRetries > 0 {
		opts = append(opts, verify.WithRetry(ctx.MaxRetries))
	}
	return verify.NewClient(ctx.ServiceURL, opts...), nil
}

// printJSON writes v in the structured format selected by --format,
// honoring the -o output file.
func printJSON(v any) error {
	format := cli.FormatJSON
	if formatOutput == "yaml" {
		format = cli.FormatYAML
	}
	return cli.Output(v, cli.OutputOptions{Format: format, File: outputFile})
}

func printVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}
