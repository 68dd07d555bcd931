package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/config"
)

// CLI flags
var (
	configFlag   string
	cameraFlag   int
	headlessFlag bool
	listenFlag   string
	staticFlag   string
	historyFlag  string
	sinkFlag     string
	logLevelFlag string
	devFlag      bool
	envFileFlag  string
)

// The preview window and the frame loop share the main goroutine, which
// HighGUI needs to stay on the main OS thread.
func init() {
	runtime.LockOSThread()
}

// rootCmd is the main Cobra command for mudra.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mudra",
		Short: "Finger-count smart switch",
		Long: `mudra watches a webcam, counts the fingers of the first visible hand and
sends a smart-home notification when a bound count appears. By default three
fingers switch the device off and four switch it on.

Press q in the preview window to quit.

Examples:
  mudra --config mudra.yaml
  mudra --camera 1 --listen :8080 --history mudra.db
  mudra --headless --sink plugin --log-level debug --dev`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMain,
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "YAML config file")
	cmd.Flags().IntVar(&cameraFlag, "camera", 0, "Camera device index")
	cmd.Flags().BoolVar(&headlessFlag, "headless", false, "Run without a preview window")
	cmd.Flags().StringVar(&listenFlag, "listen", "", "Status server address, e.g. :8080 (empty disables)")
	cmd.Flags().StringVar(&staticFlag, "static", "", "Directory served by the status server on /")
	cmd.Flags().StringVar(&historyFlag, "history", "", "SQLite file for the dispatch history (empty disables)")
	cmd.Flags().StringVar(&sinkFlag, "sink", "", "Notification sink: http or plugin")
	cmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&devFlag, "dev", false, "Human readable console logging")
	cmd.Flags().StringVar(&envFileFlag, "env-file", ".env", "dotenv file with secrets (missing file is ignored)")
	return cmd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mudra:", err)
		os.Exit(1)
	}
}

// loadConfig builds the configuration from the file, the dotenv file, the
// environment and the flags that were set on cmd, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadDotEnv(envFileFlag); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("camera") {
		cfg.Camera.Device = cameraFlag
	}
	if flags.Changed("headless") {
		cfg.Loop.Headless = headlessFlag
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = listenFlag
	}
	if flags.Changed("static") {
		cfg.Server.StaticDir = staticFlag
	}
	if flags.Changed("history") {
		cfg.History.Path = historyFlag
	}
	if flags.Changed("sink") {
		cfg.Notify.Sink = sinkFlag
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevelFlag
	}
	if flags.Changed("dev") {
		cfg.Log.Dev = devFlag
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
