package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/creativeprojects/courier/term"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:           "courier",
	Short:         "Mail client core: IMAP, Maildir, notmuch index and SMTP",
	Long:          "\nRead, search, sort and send your mail from IMAP servers, maildirs and a local index",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig, initLog)
	flag := rootCmd.PersistentFlags()
	flag.StringVarP(&global.configFile, "config", "c", "courier.yaml", "configuration file (yaml or toml)")
	flag.StringVar(&global.envFile, "env-file", ".env", "file of environment variables loaded at startup")
	flag.BoolVarP(&global.quiet, "quiet", "q", false, "only display warnings and errors")
	flag.BoolVarP(&global.verbose, "verbose", "v", false, "display debugging information")
	flag.StringVar(&global.logLevel, "log-level", "", "level of the backend logs (trace, debug, info, warn, error)")

	settings.SetEnvPrefix("COURIER")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	for _, name := range []string{"config", "quiet", "verbose", "log-level"} {
		_ = settings.BindPFlag(name, flag.Lookup(name))
	}
}

// initConfig loads the .env file, then lets COURIER_* variables override the flags left to their default
func initConfig() {
	if err := godotenv.Load(global.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		term.Warnf("cannot load %s: %s", global.envFile, err)
	}
	global.configFile = settings.GetString("config")
	global.quiet = settings.GetBool("quiet")
	global.verbose = settings.GetBool("verbose")
	global.logLevel = settings.GetString("log-level")
}

func initLog() {
	switch {
	case global.verbose:
		term.SetLevel(term.LevelDebug)
	case global.quiet:
		term.SetLevel(term.LevelWarn)
	}
}

// commandContext is cancelled on interrupt
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

func Execute(version, commit, date, builtBy string) {
	setApp(version, commit, date, builtBy)
	if err := rootCmd.Execute(); err != nil {
		term.Error(err)
		os.Exit(1)
	}
}
