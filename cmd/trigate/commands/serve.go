package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/trigate/trigate/pkg/account"
	"github.com/trigate/trigate/pkg/cli"
	"github.com/trigate/trigate/pkg/detect"
	"github.com/trigate/trigate/pkg/gate"
	"github.com/trigate/trigate/pkg/kv"
	"github.com/trigate/trigate/pkg/profile"
	"github.com/trigate/trigate/pkg/server"
	"github.com/trigate/trigate/pkg/storage"
)

var (
	serveListen string
	serveTUI    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authentication gate server",
	Long: `Run the REST and websocket server that drives authentication flows.

The server acquires one camera/microphone session per websocket client,
runs the face, voice, and lipsync steps against the context's scoring
services, and records finished attempts to the account store and the
configured archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := resolveContext()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides context)")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "render a terminal status view")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cc *cli.Context) error {
	var logDst io.Writer = os.Stderr
	var logView *cli.LogWriter
	if serveTUI {
		logView = cli.NewLogWriter(200)
		logDst = logView
	}
	log := slog.New(slog.NewTextHandler(logDst, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	client, err := newVerifyClient(cc)
	if err != nil {
		return err
	}

	addr := serveListen
	if addr == "" {
		addr = cc.Listen
	}
	if addr == "" {
		addr = ":8080"
	}

	accounts, closeAccounts, err := openAccounts(cc)
	if err != nil {
		return err
	}
	defer closeAccounts()

	archiver, err := openArchiver(cc, log)
	if err != nil {
		return err
	}

	var model detect.Model
	if cc.DetectorURL != "" {
		m, err := detect.NewHTTPModel(ctx, cc.DetectorURL)
		if err != nil {
			if !errors.Is(err, detect.ErrModelUnavailable) {
				return err
			}
			log.Warn("detector unavailable, running degraded", "url", cc.DetectorURL, "error", err)
		} else {
			model = m
		}
	} else {
		log.Warn("no detector configured, running degraded")
	}

	policy := gate.AutoAdvance
	if cc.Policy == "manual" {
		policy = gate.ManualConfirm
	}

	srv := server.New(server.Config{
		Addr:            addr,
		Verify:          client,
		Profiles:        profile.NewDirectory(client),
		Accounts:        accounts,
		Archiver:        archiver,
		Model:           model,
		DefaultPolicy:   policy,
		VoiceDuration:   time.Duration(cc.VoiceSeconds) * time.Second,
		LipsyncDuration: time.Duration(cc.LipsyncSeconds) * time.Second,
		Logger:          log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("serving", "addr", addr, "services", cc.ServiceURL)

	if serveTUI {
		stopTUI := startStatusView(logView, addr, cc)
		defer stopTUI()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// openAccounts opens the badger-backed account store at the context's
// data dir, or the default app data dir when unset.
func openAccounts(cc *cli.Context) (*account.Store, func(), error) {
	dir := cc.DataDir
	if dir == "" {
		paths, err := cli.NewPaths("trigate")
		if err != nil {
			return nil, nil, err
		}
		if err := paths.EnsureDataDir(); err != nil {
			return nil, nil, err
		}
		dir = paths.DataPath("accounts")
	}
	db, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		return nil, nil, fmt.Errorf("open account store: %w", err)
	}
	return account.NewStore(db), func() { db.Close() }, nil
}

// openArchiver builds the attempt archiver from the context's archive
// config. Returns nil when no archive is configured.
func openArchiver(cc *cli.Context, log *slog.Logger) (*gate.Archiver, error) {
	switch {
	case cc.Archive == nil:
		return nil, nil
	case cc.Archive.S3 != nil:
		s3cfg := cc.Archive.S3
		client := s3.New(s3.Options{
			Region:      s3cfg.Region,
			Credentials: envCredentials(),
		})
		return gate.NewArchiver(storage.NewS3(client, s3cfg.Bucket, s3cfg.Prefix), log), nil
	default:
		store, err := storage.NewLocal(cc.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("open archive dir: %w", err)
		}
		return gate.NewArchiver(store, log), nil
	}
}

// envCredentials reads static credentials from the standard AWS
// environment variables.
func envCredentials() aws.CredentialsProviderFunc {
	return func(context.Context) (aws.Credentials, error) {
		id := os.Getenv("AWS_ACCESS_KEY_ID")
		secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set for S3 archiving")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		}, nil
	}
}

// startStatusView redraws a terminal frame with the recent server log
// until the returned stop function is called.
func startStatusView(logs *cli.LogWriter, addr string, cc *cli.Context) func() {
	frame := cli.Frame{
		Styles: cli.NewStyles(cli.DefaultTheme),
		Title:  "TRIGATE // GATE",
		Status: addr,
		Sections: []cli.Section{
			{Label: "⚙ Context", Content: func() []string {
				return []string{
					"services: " + cc.ServiceURL,
					"detector: " + cc.DetectorURL,
					"policy:   " + cc.Policy,
				}
			}},
			{Label: "📋 System Log", Content: logs.Lines},
		},
		Help: "Ctrl+C=quit",
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			case <-logs.Channel():
			}
			// Home the cursor and clear before redrawing.
			fmt.Print("\033[H\033[2J" + frame.Render(100, 30) + "\n")
		}
	}()
	return func() { close(done) }
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
