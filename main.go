package main

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thechriswalker/egverify/cmds/history"
	"github.com/thechriswalker/egverify/cmds/verify"
	"github.com/thechriswalker/egverify/verifier"
)

func preamble(cmd *cobra.Command, args []string) {
	log.Debug().
		Str("version", verifier.Version).
		Str("format", verifier.RecordFormat).
		Str("commit", shortCommit()).
		Str("built", verifier.BuildDate).
		Str("arch", runtime.GOARCH).
		Str("os", runtime.GOOS).
		Msg("Build Info")
}

func shortCommit() string {
	if len(verifier.Commit) > 8 {
		return verifier.Commit[0:8]
	}
	return verifier.Commit
}

const timeFormatMs = "2006-01-02T15:04:05.000Z07:00"
const timeFormatLocal = "2006-01-02 15:04:05.000"

func main() {
	// configure the logger.
	// logs go to stderr so the report on stdout stays clean
	zerolog.TimeFieldFormat = timeFormatMs
	log.Logger = log.Output(zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
		cw.Out = os.Stderr
		cw.TimeFormat = timeFormatLocal
		cw.NoColor = true
	}))

	var rootCmd = &cobra.Command{
		Use:              "egverify",
		Short:            "Election record verifier",
		Version:          verifier.Version,
		PersistentPreRun: preamble,
	}

	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// commands:
	//
	// - verify: check every proof, hash and decryption in a record
	// - history: list earlier verifications of a record
	verify.Register(rootCmd)
	history.Register(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Err(err).Msg("An Error Occured")
		os.Exit(2)
	}
}
