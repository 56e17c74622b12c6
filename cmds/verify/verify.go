package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/fatih/color"
	"github.com/pkg/profile"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thechriswalker/egverify/config"
	"github.com/thechriswalker/egverify/record"
	"github.com/thechriswalker/egverify/store"
	"github.com/thechriswalker/egverify/verifier"
)

// Process exit codes
const (
	ExitValid      = 0
	ExitInvalid    = 1
	ExitIncomplete = 2
)

// Register the record verification command
func Register(rootCmd *cobra.Command) {
	v := config.New()
	var configFile string
	var asJSON bool

	var cmd = &cobra.Command{
		Use:   "verify <record.json>",
		Short: "Verify an election record",
		Long: `Check every proof, the hash chain and every decryption in a published election record.
Exits 0 when the record is valid, 1 when it is invalid and 2 when verification could not complete.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(Run(cmd.Context(), cmd.OutOrStdout(), v, configFile, args[0], asJSON))
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Config file (default is ./egverify.yaml if present)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the result as JSON instead of text")
	cmd.Flags().String("prime", "", "The agreed prime p, decimal or 0x hex (default RFC 3526 group 14)")
	cmd.Flags().String("generator", "", "The agreed generator g, decimal or 0x hex")
	cmd.Flags().String("byte-order", "big", "Byte order for hashing integers: big or little")
	cmd.Flags().Int("workers", 0, "Number of concurrent verification tasks (default number of CPUs)")
	cmd.Flags().Bool("fail-fast", false, "Stop at the first problem found")
	cmd.Flags().Duration("deadline", 0, "Give up after this long, 0 for no limit")
	cmd.Flags().BoolP("verbose", "v", false, "List every diagnostic")
	cmd.Flags().String("profile", "", "Write a CPU profile to this directory")
	cmd.Flags().String("history", "", "Record the run in this SQLite history file")

	bind := map[string]string{
		config.KeyPrime:     "prime",
		config.KeyGenerator: "generator",
		config.KeyByteOrder: "byte-order",
		config.KeyWorkers:   "workers",
		config.KeyFailFast:  "fail-fast",
		config.KeyDeadline:  "deadline",
		config.KeyVerbose:   "verbose",
		config.KeyProfile:   "profile",
		config.KeyHistory:   "history",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	rootCmd.AddCommand(cmd)
}

// Run verifies the record at path and writes the report to out, returning
// the process exit code.
func Run(ctx context.Context, out io.Writer, v *viper.Viper, configFile, path string, asJSON bool) int {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := config.ReadFile(v, configFile); err != nil {
		log.Error().Err(err).Str("config", configFile).Msg("Could not read config file")
		return ExitIncomplete
	}
	c, err := config.Load(v)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return ExitIncomplete
	}
	if c.Profile != "" {
		defer profile.Start(profile.ProfilePath(c.Profile), profile.Quiet).Stop()
	}
	sys, err := c.System()
	if err != nil {
		log.Error().Err(err).Msg("Invalid group parameters")
		return ExitIncomplete
	}

	log.Info().Str("record", path).Msg("Loading election record")
	e, err := record.Load(path)
	if err != nil {
		if errors.Is(err, record.ErrMalformed) {
			log.Error().Err(err).Msg("Election record is malformed")
		} else {
			log.Error().Err(err).Msg("Could not read election record")
		}
		return ExitIncomplete
	}

	bar := MaybeProgress(verifier.Tasks(e), os.Stderr)
	opts := append(c.Options(), verifier.WithLogger(log.Logger), verifier.WithProgress(bar.Increment))
	ver, err := verifier.New(sys, opts...)
	if err != nil {
		log.Error().Err(err).Msg("Could not create verifier")
		return ExitIncomplete
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	bar.Start()
	res, err := ver.Verify(ctx, e)
	bar.Finish()
	if err != nil {
		log.Error().Err(err).Msg("Verification aborted")
		return ExitIncomplete
	}

	if c.History != "" {
		if err := remember(c.History, path, res); err != nil {
			log.Warn().Err(err).Str("history", c.History).Msg("Could not record run in history")
		}
	}

	if asJSON {
		if err := writeJSON(out, res); err != nil {
			log.Error().Err(err).Msg("Could not write result")
		}
	} else {
		writeText(out, res, c.Verbose)
	}
	switch res.Verdict {
	case verifier.Valid:
		return ExitValid
	case verifier.Invalid:
		return ExitInvalid
	default:
		return ExitIncomplete
	}
}

// remember stores the run in the history database at dbPath.
func remember(dbPath, path string, res *verifier.Result) error {
	digest, err := store.Digest(path)
	if err != nil {
		return err
	}
	db, err := store.NewSQLiteStorage(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := db.Save(store.FromResult(digest, path, res))
	if err != nil {
		return err
	}
	log.Debug().Int64("run", id).Str("digest", fmt.Sprintf("%x", digest[:8])).Msg("Run recorded")
	return nil
}

func writeText(out io.Writer, res *verifier.Result, verbose bool) {
	var verdict *color.Color
	switch res.Verdict {
	case verifier.Valid:
		verdict = color.New(color.FgGreen, color.Bold)
	case verifier.Invalid:
		verdict = color.New(color.FgRed, color.Bold)
	default:
		verdict = color.New(color.FgYellow, color.Bold)
	}
	verdict.Fprintf(out, "%s", res.Verdict)
	fmt.Fprintf(out, " (%s) in %s\n", res.State, res.Stats.Elapsed)

	s := res.Stats
	fmt.Fprintf(out, "%d trustees, %d cast ballots, %d contest tallies, %d spoiled ballots\n",
		s.Trustees, s.CastBallots, s.ContestTallies, s.SpoiledBallots)
	names := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-18s %d proofs\n", name, s.Checks[name])
	}

	if len(res.Diagnostics) == 0 {
		return
	}
	if verbose {
		for _, d := range res.Diagnostics {
			fmt.Fprintln(out, d)
		}
		return
	}
	counts := map[verifier.Kind]int{}
	var kinds []verifier.Kind
	for _, d := range res.Diagnostics {
		if counts[d.Kind] == 0 {
			kinds = append(kinds, d.Kind)
		}
		counts[d.Kind]++
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	fmt.Fprintf(out, "%d diagnostics:", len(res.Diagnostics))
	for _, k := range kinds {
		fmt.Fprintf(out, " %s=%d", k, counts[k])
	}
	fmt.Fprintln(out, " (use --verbose to list them)")
}

type jsonDiagnostic struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

type jsonResult struct {
	Verdict     string           `json:"verdict"`
	State       string           `json:"state"`
	Diagnostics []jsonDiagnostic `json:"diagnostics"`
	Checks      map[string]int64 `json:"checks"`
	Timings     map[string]int64 `json:"timings_ms"`
	ElapsedMs   int64            `json:"elapsed_ms"`
	Version     string           `json:"version,omitempty"`
}

func writeJSON(out io.Writer, res *verifier.Result) error {
	jr := jsonResult{
		Verdict:     res.Verdict.String(),
		State:       res.State.String(),
		Diagnostics: make([]jsonDiagnostic, len(res.Diagnostics)),
		Checks:      res.Stats.Checks,
		Timings:     map[string]int64{},
		ElapsedMs:   res.Stats.Elapsed.Milliseconds(),
		Version:     verifier.Version,
	}
	for i, d := range res.Diagnostics {
		jr.Diagnostics[i] = jsonDiagnostic{Stage: d.Stage.String(), Kind: d.Kind.String(), Path: d.Path, Message: d.Message}
	}
	for stage, dur := range res.Stats.Timings {
		jr.Timings[stage.String()] = dur.Milliseconds()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
