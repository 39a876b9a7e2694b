// spaces-backup runs a single bucket-to-bucket backup and exits. It is
// the same invocation the HTTP server exposes, packaged for cron jobs
// and one-off runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dc-tec/spaces-backup/internal/config"
	backuperrors "github.com/dc-tec/spaces-backup/internal/errors"
	"github.com/dc-tec/spaces-backup/internal/function"
	"github.com/dc-tec/spaces-backup/internal/logging"
)

const (
	// Exit codes
	exitSuccess       = 0
	exitConfigError   = 1
	exitListingError  = 2
	exitFetchError    = 3
	exitArchiveError  = 4
	exitUploadError   = 5
	exitPipelineError = 6
)

func run(ctx context.Context) error {
	devMode := flag.Bool("dev", false, "use console log encoding and debug level")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	log, err := logging.NewLogger(logging.Options{Development: *devMode, Level: *verbosity})
	if err != nil {
		return backuperrors.Classify(backuperrors.KindConfig, "logging", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	resp := function.NewHandler(log).Invoke(ctx, cfg)

	out, err := json.Marshal(resp.Body)
	if err != nil {
		return backuperrors.Classify(backuperrors.KindPipeline, "encode", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	if body, ok := resp.Body.(function.ErrorBody); ok {
		return backuperrors.Newf(backuperrors.Kind(body.Error), "run", "%s", body.Message)
	}
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "spaces-backup error: %v\n", err)
		switch backuperrors.KindOf(err) {
		case backuperrors.KindConfig:
			os.Exit(exitConfigError)
		case backuperrors.KindListing:
			os.Exit(exitListingError)
		case backuperrors.KindFetch:
			os.Exit(exitFetchError)
		case backuperrors.KindArchive:
			os.Exit(exitArchiveError)
		case backuperrors.KindUpload:
			os.Exit(exitUploadError)
		default:
			os.Exit(exitPipelineError)
		}
	}
	os.Exit(exitSuccess)
}
