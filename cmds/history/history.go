package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thechriswalker/egverify/store"
	"github.com/thechriswalker/egverify/verifier"
)

// Register the verification history command
func Register(rootCmd *cobra.Command) {
	var dbPath string
	var limit int
	var asJSON bool

	var cmd = &cobra.Command{
		Use:   "history <record.json>",
		Short: "Show past verifications of a record",
		Long:  "List the runs recorded by `verify --history` for the exact bytes of a record file, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Show(cmd.OutOrStdout(), dbPath, args[0], limit, asJSON)
		},
	}
	cmd.Flags().StringVar(&dbPath, "history", "egverify.db", "The SQLite history file")
	cmd.Flags().IntVar(&limit, "limit", 10, "Show at most this many runs, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the runs as JSON")
	rootCmd.AddCommand(cmd)
}

// Show writes the stored runs for the record at path to out.
func Show(out io.Writer, dbPath, path string, limit int, asJSON bool) error {
	digest, err := store.Digest(path)
	if err != nil {
		return err
	}
	db, err := store.NewSQLiteStorage(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs(digest, limit)
	if err != nil {
		return err
	}
	log.Debug().Str("digest", fmt.Sprintf("%x", digest)).Int("runs", len(runs)).Msg("Loaded history")
	if asJSON {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		return errors.New("This record has never been verified")
	}
	for _, r := range runs {
		verdictColor(r.Verdict).Fprintf(out, "%-10s", r.Verdict)
		fmt.Fprintf(out, " %s  run %d  %s  %s  %d diagnostics\n",
			r.At.Format("2006-01-02 15:04:05"), r.ID, r.State, r.Elapsed, len(r.Diagnostics))
		for _, d := range r.Diagnostics {
			fmt.Fprintf(out, "    %s\n", d)
		}
	}
	return nil
}

func verdictColor(v verifier.Verdict) *color.Color {
	switch v {
	case verifier.Valid:
		return color.New(color.FgGreen, color.Bold)
	case verifier.Invalid:
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.FgYellow, color.Bold)
}

type jsonRun struct {
	ID          int64    `json:"id"`
	Path        string   `json:"path"`
	At          string   `json:"at"`
	Verdict     string   `json:"verdict"`
	State       string   `json:"state"`
	ElapsedMs   int64    `json:"elapsed_ms"`
	Diagnostics []string `json:"diagnostics"`
}

func writeJSON(out io.Writer, runs []*store.Run) error {
	list := make([]jsonRun, len(runs))
	for i, r := range runs {
		jr := jsonRun{
			ID:          r.ID,
			Path:        r.Path,
			At:          r.At.UTC().Format("2006-01-02T15:04:05Z"),
			Verdict:     r.Verdict.String(),
			State:       r.State.String(),
			ElapsedMs:   r.Elapsed.Milliseconds(),
			Diagnostics: make([]string, len(r.Diagnostics)),
		}
		for j, d := range r.Diagnostics {
			jr.Diagnostics[j] = d.String()
		}
		list[i] = jr
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
