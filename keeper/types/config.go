package types

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the state keeper's configuration (spec §6
// "Configuration (options enumerated)"), grounded on the teacher's
// provers/types/config.go getEnv-plus-positional-flag pattern.
type Config struct {
	// NTx is the number of transactions buffered per block before
	// BlockFormer.Forge fires.
	NTx int
	// HAcc, HBal, HOrd are the account/balance/order Merkle-tree heights.
	HAcc uint
	HBal uint
	HOrd uint
	// AmountLen is the number of bytes a packed amount occupies on the
	// pub-data wire.
	AmountLen int

	// PersistEveryNBlock snapshots state to PersistDir every N forged
	// blocks; 0 disables periodic snapshotting.
	PersistEveryNBlock uint64
	PersistDir         string

	// Brokers is the message-source endpoint list. It is parsed from the
	// environment and flags, but no component reads it: the only event
	// source is adapter.FileEventSource.
	Brokers []string

	Verbose bool
}

// NewConfig builds a Config from environment-variable defaults,
// overridden by positional "--flag value" pairs in args.
func NewConfig(args ...string) *Config {
	config := Config{
		NTx:                getEnvInt("N_TX", 16),
		HAcc:               getEnvUint("H_ACC", 20),
		HBal:               getEnvUint("H_BAL", 4),
		HOrd:               getEnvUint("H_ORD", 4),
		AmountLen:          getEnvInt("AMOUNT_LEN", 5),
		PersistEveryNBlock: getEnvUint64("PERSIST_EVERY_N_BLOCK", 100),
		PersistDir:         getEnv("PERSIST_DIR", "./data"),
		Brokers:            splitCSV(getEnv("BROKERS", "")),
		Verbose:            getEnvBool("VERBOSE", false),
	}

	for i := 0; i < len(args); i++ {
		if len(args) <= i+1 {
			panic(fmt.Errorf("missing argument for %s", args[i]))
		}

		switch args[i] {
		case "--n-tx":
			config.NTx, _ = strconv.Atoi(args[i+1])
			i++
		case "--h-acc":
			v, _ := strconv.ParseUint(args[i+1], 10, 64)
			config.HAcc = uint(v)
			i++
		case "--h-bal":
			v, _ := strconv.ParseUint(args[i+1], 10, 64)
			config.HBal = uint(v)
			i++
		case "--h-ord":
			v, _ := strconv.ParseUint(args[i+1], 10, 64)
			config.HOrd = uint(v)
			i++
		case "--amount-len":
			config.AmountLen, _ = strconv.Atoi(args[i+1])
			i++
		case "--persist-every-n-block":
			config.PersistEveryNBlock, _ = strconv.ParseUint(args[i+1], 10, 64)
			i++
		case "--persist-dir":
			config.PersistDir = args[i+1]
			i++
		case "--brokers":
			config.Brokers = splitCSV(args[i+1])
			i++
		case "--verbose":
			config.Verbose, _ = strconv.ParseBool(args[i+1])
			i++
		}
	}

	return &config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint) uint {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uint(v)
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
