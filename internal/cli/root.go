package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/bootstrap"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	ConfigDir string

	container *bootstrap.Container
}

// Execute runs the root command and releases every service it opened.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{Logger: zerolog.Nop()}
	defer app.Close()

	err := NewRootCmd(app).ExecuteContext(ctx)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "journalbot",
		Short: "AI-powered trading journal",
		Long: `journalbot captures trades from free-form messages, screenshots and voice
notes, asks for whatever is missing, and journals each completed trade to
Google Sheets or a local database.

Run 'journalbot serve' for the HTTP API and Telegram webhook, or
'journalbot capture' to journal from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/journalbot)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	addCaptureCommand(rootCmd, app)
	addSessionCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)
	addAnalysisCommand(rootCmd, app)
	addAccountCommands(rootCmd, app)

	return rootCmd
}

// init loads configuration and the logger. Console logging is reserved for
// serve so interactive output stays readable.
func (a *App) init(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.ConfigDir = dir
	if a.ConfigDir == "" {
		a.ConfigDir = config.DefaultConfigDir()
	}

	debug, _ := cmd.Flags().GetBool("debug")
	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.JSON = cfg.Logging.JSON
	logCfg.File = cfg.Logging.File
	logCfg.FilePath = cfg.Logging.Path
	logCfg.Console = cmd.Name() == "serve" || debug
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	if debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	return nil
}

// Services builds the service container on first use.
func (a *App) Services(ctx context.Context) (*bootstrap.Container, error) {
	if a.container != nil {
		return a.container, nil
	}
	if a.Config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	c, err := bootstrap.NewContainer(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("initialising services: %w", err)
	}
	a.container = c
	return c, nil
}

// Close releases the service container.
func (a *App) Close() error {
	if a.container == nil {
		return nil
	}
	err := a.container.Close()
	a.container = nil
	return err
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("journalbot v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
