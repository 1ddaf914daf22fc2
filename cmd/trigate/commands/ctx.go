package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/trigate/trigate/pkg/cli"
)

var (
	ctxServiceURL     string
	ctxListen         string
	ctxDetectorURL    string
	ctxPolicy         string
	ctxVoiceSeconds   int
	ctxLipsyncSeconds int
	ctxArchiveDir     string
	ctxS3Bucket       string
	ctxS3Prefix       string
	ctxS3Region       string
	ctxDataDir        string
	ctxTimeout        int
	ctxMaxRetries     int
)

var ctxCmd = &cobra.Command{
	Use:   "ctx",
	Short: "Context configuration management",
	Long: `Manage deployment contexts.

A context names the scoring services to verify against and how the local
gate should run (listen address, step policy, attempt archive). Switching
contexts switches the entire deployment target.

Examples:
  trigate ctx add dev --service-url http://localhost:8000
  trigate ctx use dev
  trigate ctx add prod --service-url https://verify.internal --s3-bucket gate-attempts
  trigate ctx list`,
}

var ctxAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a new context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := &cli.Context{
			ServiceURL:     ctxServiceURL,
			Listen:         ctxListen,
			DetectorURL:    ctxDetectorURL,
			Policy:         ctxPolicy,
			VoiceSeconds:   ctxVoiceSeconds,
			LipsyncSeconds: ctxLipsyncSeconds,
			DataDir:        ctxDataDir,
			Timeout:        ctxTimeout,
			MaxRetries:     ctxMaxRetries,
		}
		if ctxArchiveDir != "" && ctxS3Bucket != "" {
			return fmt.Errorf("--archive-dir and --s3-bucket are mutually exclusive")
		}
		if ctxArchiveDir != "" {
			ctx.Archive = &cli.ArchiveConfig{Dir: ctxArchiveDir}
		}
		if ctxS3Bucket != "" {
			ctx.Archive = &cli.ArchiveConfig{S3: &cli.S3Config{
				Bucket: ctxS3Bucket,
				Prefix: ctxS3Prefix,
				Region: ctxS3Region,
			}}
		}
		if err := cfg.AddContext(args[0], ctx); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(args[0]); err != nil {
				return err
			}
		}
		if jsonOutput {
			return printJSON(map[string]any{"name": args[0], "status": "created"})
		}
		fmt.Printf("Context %q created.\n", args[0])
		return nil
	},
}

var ctxRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"name": args[0], "status": "removed"})
		}
		fmt.Printf("Context %q removed.\n", args[0])
		return nil
	},
}

var ctxUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"name": args[0], "status": "active"})
		}
		fmt.Printf("Switched to context %q.\n", args[0])
		return nil
	},
}

var ctxCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			return fmt.Errorf("no current context set")
		}
		if jsonOutput {
			return printJSON(map[string]any{"current": cfg.CurrentContext})
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var ctxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		sort.Strings(names)
		if jsonOutput {
			return printJSON(map[string]any{"current": cfg.CurrentContext, "contexts": names})
		}
		if len(names) == 0 {
			fmt.Println("No contexts configured.")
			fmt.Println("Create one with: trigate ctx add <name> --service-url <url>")
			return nil
		}
		for _, name := range names {
			marker := "  "
			if name == cfg.CurrentContext {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, name)
		}
		return nil
	},
}

var ctxShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show context details",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := contextName
		if len(args) > 0 {
			name = args[0]
		}
		ctx, err := cfg.ResolveContext(name)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(ctx)
		}
		fmt.Printf("Context: %s\n", ctx.Name)
		fmt.Printf("  service_url:  %s\n", valueOrEmpty(ctx.ServiceURL))
		fmt.Printf("  listen:       %s\n", valueOrEmpty(ctx.Listen))
		fmt.Printf("  detector_url: %s\n", valueOrEmpty(ctx.DetectorURL))
		fmt.Printf("  policy:       %s\n", valueOrEmpty(ctx.Policy))
		if ctx.VoiceSeconds > 0 {
			fmt.Printf("  voice:        %ds\n", ctx.VoiceSeconds)
		}
		if ctx.LipsyncSeconds > 0 {
			fmt.Printf("  lipsync:      %ds\n", ctx.LipsyncSeconds)
		}
		switch {
		case ctx.Archive == nil:
			fmt.Printf("  archive:      (not set)\n")
		case ctx.Archive.S3 != nil:
			fmt.Printf("  archive:      s3://%s/%s\n", ctx.Archive.S3.Bucket, ctx.Archive.S3.Prefix)
		default:
			fmt.Printf("  archive:      %s\n", ctx.Archive.Dir)
		}
		return nil
	},
}

func init() {
	ctxAddCmd.Flags().StringVar(&ctxServiceURL, "service-url", "", "scoring services base URL")
	ctxAddCmd.Flags().StringVar(&ctxListen, "listen", "", "serve listen address (default :8080)")
	ctxAddCmd.Flags().StringVar(&ctxDetectorURL, "detector-url", "", "face-presence detector endpoint")
	ctxAddCmd.Flags().StringVar(&ctxPolicy, "policy", "", "step advancement policy: auto or manual")
	ctxAddCmd.Flags().IntVar(&ctxVoiceSeconds, "voice-seconds", 0, "voice recording bound in seconds")
	ctxAddCmd.Flags().IntVar(&ctxLipsyncSeconds, "lipsync-seconds", 0, "lipsync recording bound in seconds")
	ctxAddCmd.Flags().StringVar(&ctxArchiveDir, "archive-dir", "", "archive attempts to a local directory")
	ctxAddCmd.Flags().StringVar(&ctxS3Bucket, "s3-bucket", "", "archive attempts to an S3 bucket")
	ctxAddCmd.Flags().StringVar(&ctxS3Prefix, "s3-prefix", "", "S3 key prefix")
	ctxAddCmd.Flags().StringVar(&ctxS3Region, "s3-region", "", "S3 bucket region")
	ctxAddCmd.Flags().StringVar(&ctxDataDir, "data-dir", "", "account store directory")
	ctxAddCmd.Flags().IntVar(&ctxTimeout, "timeout", 0, "request timeout in seconds")
	ctxAddCmd.Flags().IntVar(&ctxMaxRetries, "max-retries", 0, "maximum verification request retries")

	ctxCmd.AddCommand(ctxAddCmd)
	ctxCmd.AddCommand(ctxRemoveCmd)
	ctxCmd.AddCommand(ctxUseCmd)
	ctxCmd.AddCommand(ctxCurrentCmd)
	ctxCmd.AddCommand(ctxListCmd)
	ctxCmd.AddCommand(ctxShowCmd)

	rootCmd.AddCommand(ctxCmd)
}

func valueOrEmpty(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
