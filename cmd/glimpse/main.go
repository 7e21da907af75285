package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rfontain/glimpse/internal/capture"
	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/mcp"
	"github.com/rfontain/glimpse/internal/pipeline"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"capture": true, "sessions": true, "tasks": true,
	"analyze": true, "pending": true, "report": true,
	"settings": true, "status": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    ___  _     ___  __  __  ___  ___  ___
   / __|| |   |_ _||  \/  || _ \/ __|| __|
  | (_ || |__  | | | |\/| ||  _/\__ \| _|
   \___||____||___||_|  |_||_|  |___/|___|

  Screen activity capture & task inference

  Usage: glimpse <command> [options]
         glimpse --help

  MCP server mode requires piped input.`)
}

// baseDir resolves the state directory: $GLIMPSE_DIR, else ~/.glimpse.
func baseDir() (string, error) {
	if dir := os.Getenv("GLIMPSE_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".glimpse"), nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil, "", "")
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dir, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	screenshotsDir := cfg.ScreenshotsPath(dir)
	exportsDir := filepath.Join(dir, "exports")
	ctrl := pipeline.NewController(database, cfg, capture.NewExecProvider(), screenshotsDir)

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(database, cfg, ctrl, screenshotsDir, exportsDir)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'glimpse --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, ctrl, exportsDir, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
