// Command worthbar prints a compact "net worth + daily change" label for
// the menu-bar host, sourced from the aggregator's live API with the
// host's own cached datasets as fallback.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"worthbar/internal/api"
	"worthbar/internal/config"
	"worthbar/internal/format"
	"worthbar/internal/hostdata"
	"worthbar/internal/oauthcfg"
	"worthbar/internal/snapshot"
	"worthbar/internal/state"
	"worthbar/internal/token"
)

// placeholderLabel is printed when no value and no prior state exist.
const placeholderLabel = "$--"

// signinLabel is the friendly plain-mode prompt for signin_required.
const signinLabel = "Sign In"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("worthbar", flag.ContinueOnError)
	fs.SetOutput(stderr)

	jsonOut := fs.Bool("json", false, "Emit machine-readable JSON instead of the plain label")
	diagnostics := fs.Bool("diagnostics", false, "Print a diagnostics report and exit")
	verbose := fs.Bool("verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// Optional .env next to the working directory; absence is fine.
	_ = godotenv.Load()

	logger := newLogger(*verbose)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	store := state.NewDirStore(cfg.DataDir)
	builder := newBuilder(cfg, store, logger)
	ctx := context.Background()

	if *diagnostics {
		return runDiagnostics(ctx, cfg, store, builder, stdout)
	}

	snap, err := builder.Snapshot(ctx)
	if err != nil {
		return reportFailure(err, *jsonOut, store, stdout, logger)
	}

	label := format.Label(snap)
	if *jsonOut {
		writeJSON(stdout, map[string]any{
			"ok":            true,
			"source":        snap.Source,
			"total":         snap.Total,
			"daily_percent": snap.DailyPercent,
			"label":         label,
		})
		return 0
	}

	if err := store.Write(state.LastLabelFile, []byte(label+"\n")); err != nil {
		logger.Warn().Err(err).Msg("could not persist last label")
	}
	fmt.Fprintln(stdout, label)
	return 0
}

// newLogger builds the run logger: console output on a terminal, JSON
// lines otherwise, warn level unless verbose.
func newLogger(verbose bool) zerolog.Logger {
	var w io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("run_id", uuid.NewString()[:8]).
		Logger()
}

// newBuilder wires the acquisition pipeline: host storage reader, config
// resolver, token manager, and the live API client.
func newBuilder(cfg config.Config, store state.Store, logger zerolog.Logger) *snapshot.Builder {
	client := api.NewClient(config.HTTPTimeout, logger)

	return &snapshot.Builder{
		Host: &hostdata.Reader{
			Root: cfg.HostStorage,
			Host: cfg.Host,
			Log:  logger,
		},
		Resolver: &oauthcfg.Resolver{
			Fetch:   client.FetchBytes,
			Store:   store,
			BaseURL: cfg.BaseURL,
			Host:    cfg.Host,
			Log:     logger,
		},
		Tokens: &token.Manager{
			Store:     store,
			Refresher: client,
			Log:       logger,
		},
		API: client,
		Log: logger,
	}
}

// reportFailure renders a failed snapshot attempt. JSON mode surfaces the
// structured error; plain mode degrades through the last persisted label,
// then a sign-in prompt, then the placeholder.
func reportFailure(err error, jsonOut bool, store state.Store, stdout io.Writer, logger zerolog.Logger) int {
	code, message := errorCode(err)
	logger.Error().Str("error_code", code).Str("message", message).Msg("snapshot unavailable")

	if jsonOut {
		writeJSON(stdout, map[string]any{
			"ok":         false,
			"error_code": code,
			"message":    message,
		})
		return 1
	}

	if data, readErr := store.Read(state.LastLabelFile); readErr == nil {
		fmt.Fprintln(stdout, strings.TrimSpace(string(data)))
		return 0
	}
	if code == snapshot.CodeSigninRequired {
		fmt.Fprintln(stdout, signinLabel)
		return 0
	}
	fmt.Fprintln(stdout, placeholderLabel)
	return 1
}

func errorCode(err error) (string, string) {
	var ce *snapshot.ClassifiedError
	if errors.As(err, &ce) {
		return ce.Code, ce.Err.Error()
	}
	return snapshot.CodeUnavailable, err.Error()
}

// runDiagnostics reports the existence of each storage path plus the
// outcome of a full snapshot attempt.
func runDiagnostics(ctx context.Context, cfg config.Config, store state.Store, builder *snapshot.Builder, stdout io.Writer) int {
	payload := map[string]any{
		"host_storage_exists": dirExists(cfg.HostStorage),
		"container_exists":    dirExists(cfg.ContainerDir),
		"state_file_exists":   store.Exists(state.LastLabelFile),
		"token_cache_exists":  store.Exists(state.TokenCacheFile),
		"oauth_config_exists": store.Exists(state.OAuthConfigFile),
	}

	snap, err := builder.Snapshot(ctx)
	if err != nil {
		code, message := errorCode(err)
		payload["snapshot_ok"] = false
		payload["error_code"] = code
		payload["error"] = message
	} else {
		payload["snapshot_ok"] = true
		payload["source"] = snap.Source
		payload["total"] = roundTo(snap.Total, 2)
		payload["daily_percent"] = roundTo(snap.DailyPercent, 4)
	}

	out, _ := json.MarshalIndent(payload, "", "  ")
	fmt.Fprintln(stdout, string(out))
	return 0
}

func writeJSON(w io.Writer, payload map[string]any) {
	out, _ := json.Marshal(payload)
	fmt.Fprintln(w, string(out))
}

func dirExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
