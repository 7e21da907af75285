package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/errors"
	"github.com/rfontain/glimpse/internal/ops"
	"github.com/rfontain/glimpse/internal/pipeline"
	"github.com/rfontain/glimpse/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(database *sql.DB, cfg *config.Config, ctrl *pipeline.Controller, screenshotsDir, exportsDir string) *cli.App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	app := &cli.App{
		Name:    "glimpse",
		Usage:   "Screen activity capture & task inference",
		Version: Version,
		Commands: []*cli.Command{
			captureCmd(ctrl),
			sessionsCmd(database, screenshotsDir),
			tasksCmd(database),
			analyzeCmd(database, ctrl),
			pendingCmd(database, screenshotsDir),
			reportCmd(database, exportsDir),
			settingsCmd(database),
			statusCmd(database, ctrl),
			serveCmd(database, cfg, screenshotsDir),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureOutput summarizes a finished capture session.
type captureOutput struct {
	SessionID string `json:"session_id"`
	Analyzed  int    `json:"analyzed"`
}

// captureCmd creates the capture command.
func captureCmd(ctrl *pipeline.Controller) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Run a capture session in the foreground (Ctrl-C to stop)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "What you are working on (given to the analysis prompt)"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Session title"},
		},
		Action: func(c *cli.Context) error {
			var desc, title *string
			if d := c.String("description"); d != "" {
				desc = &d
			}
			if t := c.String("title"); t != "" {
				title = &t
			}

			id, err := ctrl.StartSession(desc, title)
			if err != nil {
				return outputError(err)
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			// A second Ctrl-C abandons the final analysis sweep after
			// its current capture group.
			go func() {
				<-sig
				out := ops.AnalyzeCancel(ctrl)
				log.Printf("capture: analysis cancel requested (in flight: %v)", out.Canceled)
			}()

			_, analyzed, err := ctrl.StopSession(context.Background())
			signal.Stop(sig)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(captureOutput{SessionID: id, Analyzed: analyzed})
		},
	}
}

// sessionsCmd creates the sessions command group.
func sessionsCmd(database *sql.DB, screenshotsDir string) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List, inspect, and delete capture sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List capture sessions, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "completed", Usage: "List ended sessions instead of open ones"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.SessionsList(database, ops.SessionsListInput{
						Completed: c.Bool("completed"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show one session with its tasks",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "screenshots", Usage: "Include the session's screenshots"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.SessionGet(database, ops.SessionGetInput{
						ID:              c.Args().First(),
						WithScreenshots: c.Bool("screenshots"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a session, its screenshots, and orphaned tasks",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.SessionDelete(database, screenshotsDir, ops.SessionDeleteInput{
						ID: c.Args().First(),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// tasksCmd creates the tasks command group.
func tasksCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List and maintain inferred tasks",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Only tasks from this session"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultTaskLimit, Usage: "Maximum tasks to return"},
				},
				Action: func(c *cli.Context) error {
					input := ops.TasksListInput{Limit: c.Int("limit")}
					if s := c.String("session"); s != "" {
						input.SessionID = &s
					}
					output, err := ops.TasksList(database, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "update",
				Usage:     "Edit a task's title, description, category, or verified mark",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "New description"},
					&cli.StringFlag{Name: "category", Usage: "New category (coding|browsing|writing|communication|design|other)"},
					&cli.BoolFlag{Name: "verified", Usage: "Mark the task as human-verified"},
				},
				Action: func(c *cli.Context) error {
					input := ops.TaskUpdateInput{ID: c.Args().First()}
					if title := c.String("title"); title != "" {
						input.Title = &title
					}
					if desc := c.String("description"); desc != "" {
						input.Description = &desc
					}
					if cat := c.String("category"); cat != "" {
						input.Category = &cat
					}
					if c.IsSet("verified") {
						v := c.Bool("verified")
						input.Verified = &v
					}
					output, err := ops.TaskUpdate(database, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a task (its screenshots become unanalyzed again)",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.TaskDelete(database, ops.TaskDeleteInput{
						ID: c.Args().First(),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(database *sql.DB, ctrl *pipeline.Controller) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Run an analysis pass over unanalyzed screenshots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Only this session's screenshots"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Capture groups to analyze (0 = all pending)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.AnalyzeInput{Limit: c.Int("limit")}
			if s := c.String("session"); s != "" {
				input.SessionID = &s
			}
			output, err := ops.Analyze(c.Context, ctrl, database, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// pendingCmd creates the pending command group.
func pendingCmd(database *sql.DB, screenshotsDir string) *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "Inspect or discard unanalyzed screenshots",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List unanalyzed screenshots, oldest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Only this session's screenshots"},
				},
				Action: func(c *cli.Context) error {
					input := ops.PendingListInput{}
					if s := c.String("session"); s != "" {
						input.SessionID = &s
					}
					output, err := ops.PendingList(database, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Delete unanalyzed screenshots, rows and files both",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Only this session's screenshots"},
				},
				Action: func(c *cli.Context) error {
					input := ops.PendingClearInput{}
					if s := c.String("session"); s != "" {
						input.SessionID = &s
					}
					output, err := ops.PendingClear(database, screenshotsDir, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// reportCmd creates the report command.
func reportCmd(database *sql.DB, exportsDir string) *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render a session's markdown report and write it to disk",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default: <exports>/report_<session>.md)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Report(database, exportsDir, ops.ReportInput{
				SessionID: c.Args().First(),
				OutFile:   c.String("out"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// settingsCmd creates the settings command group.
func settingsCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Read and write runtime settings",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Read one setting (stored value or default)",
				ArgsUsage: "<key>",
				Action: func(c *cli.Context) error {
					output, err := ops.SettingsGet(database, ops.SettingsGetInput{
						Key: c.Args().First(),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "set",
				Usage:     "Validate and store a setting",
				ArgsUsage: "<key> <value>",
				Action: func(c *cli.Context) error {
					output, err := ops.SettingsSet(database, ops.SettingsSetInput{
						Key:   c.Args().Get(0),
						Value: c.Args().Get(1),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "List every setting with its effective value",
				Action: func(c *cli.Context) error {
					output, err := ops.SettingsList(database)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// statusCmd creates the status command.
func statusCmd(database *sql.DB, ctrl *pipeline.Controller) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show pipeline state and store totals",
		Action: func(c *cli.Context) error {
			output, err := ops.Status(ctrl, database, Version)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(database *sql.DB, cfg *config.Config, screenshotsDir string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the read-only web dashboard (Ctrl-C to stop)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: cfg.WebBind, Usage: "Address to listen on"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: cfg.WebPort, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(database, screenshotsDir, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var gerr *errors.GlimpseError
	if stderrors.As(err, &gerr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", gerr.Code, gerr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
