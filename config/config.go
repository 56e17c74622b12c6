// Package config loads the verifier settings from flags, EGVERIFY_*
// environment variables and an optional egverify.yaml, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	big "github.com/ncw/gmp"
	"github.com/spf13/viper"

	"github.com/thechriswalker/egverify/crypto"
	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/verifier"
)

// Keys understood in the config file and, upper cased with an EGVERIFY_
// prefix, in the environment.
const (
	KeyPrime     = "prime"
	KeyGenerator = "generator"
	KeyByteOrder = "byte_order"
	KeyWorkers   = "workers"
	KeyFailFast  = "fail_fast"
	KeyDeadline  = "deadline"
	KeyVerbose   = "verbose"
	KeyProfile   = "profile"
	KeyHistory   = "history"
)

// Config is the resolved verifier configuration.
type Config struct {
	// Prime and Generator are nil for the default RFC 3526 group 14
	Prime     *big.Int
	Generator *big.Int
	ByteOrder crypto.ByteOrder
	Workers   int
	FailFast  bool
	Deadline  time.Duration
	Verbose   bool
	// Profile is the directory to write a CPU profile to, empty for none
	Profile string
	// History is the SQLite file runs are recorded in, empty for none
	History string
}

// New creates a viper instance with our defaults, environment binding and
// config file search path.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPrime, "")
	v.SetDefault(KeyGenerator, "")
	v.SetDefault(KeyByteOrder, "big")
	v.SetDefault(KeyWorkers, runtime.NumCPU())
	v.SetDefault(KeyFailFast, false)
	v.SetDefault(KeyDeadline, time.Duration(0))
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyProfile, "")
	v.SetDefault(KeyHistory, "")

	v.SetEnvPrefix("egverify")
	v.AutomaticEnv()

	v.SetConfigName("egverify")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	return v
}

// ReadFile reads the config file if there is one. An explicit path must
// exist, the default search may find nothing.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && path == "" && errors.As(err, &notFound) {
		return nil
	}
	return err
}

// Load resolves the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		Workers:  v.GetInt(KeyWorkers),
		FailFast: v.GetBool(KeyFailFast),
		Deadline: v.GetDuration(KeyDeadline),
		Verbose:  v.GetBool(KeyVerbose),
		Profile:  v.GetString(KeyProfile),
		History:  v.GetString(KeyHistory),
	}
	var err error
	if c.ByteOrder, err = crypto.ParseByteOrder(v.GetString(KeyByteOrder)); err != nil {
		return nil, err
	}
	if c.Prime, err = parseInt(KeyPrime, v.GetString(KeyPrime)); err != nil {
		return nil, err
	}
	if c.Generator, err = parseInt(KeyGenerator, v.GetString(KeyGenerator)); err != nil {
		return nil, err
	}
	if (c.Prime == nil) != (c.Generator == nil) {
		return nil, fmt.Errorf("Both %s and %s must be given to override the default group", KeyPrime, KeyGenerator)
	}
	if c.Workers < 1 {
		c.Workers = runtime.NumCPU()
	}
	if c.Deadline < 0 {
		return nil, fmt.Errorf("Negative %s: %s", KeyDeadline, c.Deadline)
	}
	return c, nil
}

// parseInt accepts decimal or 0x prefixed hex. Empty means unset.
func parseInt(key, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("Expecting a positive integer for %s, got %q", key, s)
	}
	return n, nil
}

// System is the agreed group records are checked against.
func (c *Config) System() (*elgamal.System, error) {
	if c.Prime == nil {
		sys := elgamal.RFC3526Group14()
		sys.Order = c.ByteOrder
		return sys, nil
	}
	return elgamal.NewSystem(c.Prime, c.Generator, c.ByteOrder)
}

// Options are the verifier options this configuration implies.
func (c *Config) Options() []verifier.Option {
	return []verifier.Option{
		verifier.WithWorkers(c.Workers),
		verifier.WithStopOnFirstFailure(c.FailFast),
		verifier.WithDeadline(c.Deadline),
	}
}
