package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pf-aics-riken/mpispawner/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: mpispawner config <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	layout, err := cfg.Layout()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration valid: %s\n", cfg.SourcePath)
	fmt.Printf("cluster: %d ranks, master %d\n", cfg.Cluster.Size, layout.Master)
	for _, g := range layout.Groups {
		fmt.Printf("  group %-2d %-16s ranks %s color %016x\n", g.Index, g.Subworld, joinInts(g.Ranks), g.Color)
	}
	if len(layout.Spare) > 0 {
		fmt.Printf("  spare    ranks %s\n", joinInts(layout.Spare))
	}
	fmt.Printf("jobs: %d\n", len(cfg.Jobs))
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	// A broken file is never authorized.
	cfg, err := config.LoadUnverified(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock: %v\n", err)
		return 1
	}
	hash, err := config.Lock(cfg.SourcePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s (blake3 %s)\n", cfg.SourcePath, hash)
	return 0
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
