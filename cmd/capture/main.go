// Command capture runs one review acquisition: it signs in, finds the best
// review on the configured listing, screenshots it (or renders a stand-in
// card) and queues the result for approval.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"review_bot/internal/auth"
	"review_bot/internal/browser"
	"review_bot/internal/capture"
	"review_bot/internal/card"
	"review_bot/internal/config"
	"review_bot/internal/discovery"
	"review_bot/internal/logging"
	"review_bot/internal/pipeline"
	"review_bot/internal/queue"
	"review_bot/internal/storage"
)

var errCaptureFailed = errors.New("capture failed")

var (
	skipLogin bool
	headful   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a Google Maps review and queue it for approval",
	Long: `Capture opens the configured Google Maps listing, picks the best recent
review, screenshots it and adds a pending post to the queue. When no review
can be captured a stand-in review card is rendered instead.

Settings are read from the environment and an optional .env file:
GOOGLE_MAPS_URL (required), GOOGLE_EMAIL, GOOGLE_PASSWORD, PLACE_NAME,
SCREENSHOTS_DIR, POST_STORE, POSTS_FILE, DATABASE_PATH.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCapture,
}

func init() {
	rootCmd.Flags().BoolVar(&skipLogin, "skip-login", false, "do not sign in before visiting the listing")
	rootCmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
}

func runCapture(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireListing(); err != nil {
		return err
	}
	if headful {
		cfg.Headless = false
	}

	log := logging.New(cfg.LogLevel)

	if err := os.MkdirAll(cfg.ScreenshotsDir, 0o750); err != nil {
		return fmt.Errorf("create screenshots directory: %w", err)
	}

	store, err := storage.Open(cfg.PostStore, cfg.PostsFile, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open post store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	q := queue.New(store, log)
	index, err := pipeline.LoadIndex(ctx, q)
	if err != nil {
		return err
	}
	log.Info("duplicate index loaded", "entries", index.Len())

	var (
		opener   browser.Opener
		template card.OpenFunc
	)
	session, err := browser.Launch(ctx, browser.Options{Bin: cfg.BrowserBin, Headless: cfg.Headless}, log)
	if err != nil {
		log.Error("launch browser", "error", err)
		opener = browser.Unavailable{Err: err}
	} else {
		defer func() {
			if err := session.Close(); err != nil {
				log.Debug("close browser", "error", err)
			}
		}()
		opener = session
		template = card.SharedOpener(session)
	}

	var snapshot func(page browser.Page, stage string)
	if cfg.DebugShots {
		snapshot = pipeline.DebugSnapshot(cfg.ScreenshotsDir, log)
	}

	runner := pipeline.New(pipeline.Deps{
		Opener: opener,
		Auth:   auth.New(auth.Options{DiagnosticsDir: cfg.ScreenshotsDir, Uncertain: cfg.LoginUncertain}, log),
		Discovery: discovery.New(discovery.Options{
			ListingURL:  cfg.MapsURL,
			SearchQuery: cfg.SearchQuery,
			Snapshot:    snapshot,
		}, index, log),
		Capture: capture.New(log),
		Cards: card.NewRenderer(cfg.ScreenshotsDir, log,
			card.NewTemplate(cfg.CardTemplatePath, template, log),
			card.NewRaster(log),
		),
		Queue: q,
		Index: index,
		Log:   log,
	}, pipeline.Options{
		ScreenshotsDir: cfg.ScreenshotsDir,
		PlaceName:      cfg.PlaceName,
		Credentials:    cfg.Credentials(),
		SkipLogin:      skipLogin,
		DebugShots:     cfg.DebugShots,
		Page:           browser.DefaultPageOptions,
	})

	log.Info("starting capture", "listing", cfg.MapsURL, "place", cfg.PlaceName, "headless", cfg.Headless)
	res, err := runner.Run(ctx)
	fmt.Fprint(cmd.OutOrStdout(), "\n"+res.Summary())
	if err != nil {
		return fmt.Errorf("%w: %w", errCaptureFailed, err)
	}
	if !res.OK() {
		return errCaptureFailed
	}
	return nil
}
