// Command render-card draws a single review card PNG from flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"review_bot/internal/browser"
	"review_bot/internal/card"
	"review_bot/internal/config"
	"review_bot/internal/logging"
)

var (
	c         card.Card
	outputDir string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "render-card",
	Short: "Render a Google Maps style review card",
	Long: `Render-card draws a review card PNG. The HTML template is rendered in a
headless browser when one can be started; otherwise the card is drawn
directly.

Example:
  render-card --name "Maria K." --rating 5 --text "Lovely staff." --store "Blue Door"`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return c.Validate()
	},
	RunE: runRender,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&c.Name, "name", "A. Smith", "reviewer name")
	f.IntVar(&c.Rating, "rating", 5, "star rating, 1-5")
	f.StringVar(&c.Text, "text", "", "review text")
	f.StringVar(&c.Date, "date", "2 weeks ago", "relative review date")
	f.StringVar(&c.Store, "store", "", "place name shown in the header (default $PLACE_NAME)")
	f.StringVar(&c.Badge, "badge", card.DefaultBadge, "label under the reviewer name")
	f.StringVar(&outputDir, "output-dir", "", "directory for the PNG (default $SCREENSHOTS_DIR)")
	_ = rootCmd.MarkFlagRequired("text")
}

func runRender(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel)

	if c.Store == "" {
		c.Store = cfg.PlaceName
	}
	if outputDir == "" {
		outputDir = cfg.ScreenshotsDir
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	r := card.NewRenderer(outputDir, log,
		card.NewTemplate(cfg.CardTemplatePath, card.LaunchOpener(browser.Options{Bin: cfg.BrowserBin, Headless: true}, log), log),
		card.NewRaster(log),
	)
	path, err := r.Render(cmd.Context(), c)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
