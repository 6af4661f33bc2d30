// Package main provides the entry point for the chunkvoice CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dgnsrekt/chunkvoice/tts/engines"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile        string
	defaultConfigFile string
	debug             bool

	// cfg is the effective configuration, loaded before every command runs.
	cfg tts.Config

	rootCmd = &cobra.Command{
		Use:   "chunkvoice",
		Short: "Speak text through a local TTS engine, one chunk at a time",
		Long: paragraph(
			fmt.Sprintf("\nSplit text into %s, synthesize them in order and play or save the audio.", keyword("word-bounded chunks")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"engine":    "engine",
	"model":     "model.model_path",
	"tokens":    "model.tokens_path",
	"data-dir":  "model.data_dir_path",
	"speaker":   "speaker_id",
	"speed":     "speed",
	"max-words": "max_words",
	"cache":     "cache.enabled",

	// serve
	"embedded":     "bus.embedded",
	"port":         "bus.port",
	"metrics-addr": "metrics.addr",
}

func validateOptions(cmd *cobra.Command) error {
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	c, err := tts.LoadConfigFromViper(viper.GetViper())
	if err != nil {
		return err
	}

	// Flags beat the environment.
	changed := false
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f == nil || !f.Changed {
			continue
		}
		changed = true
		applyFlag(&c, key)
	}
	if changed {
		if err := c.ExpandPaths(); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	cfg = c
	log.Debug("configuration loaded", "engine", cfg.Engine, "file", viper.ConfigFileUsed())
	return nil
}

func applyFlag(c *tts.Config, key string) {
	switch key {
	case "engine":
		c.Engine = viper.GetString(key)
	case "model.model_path":
		c.Model.ModelPath = viper.GetString(key)
	case "model.tokens_path":
		c.Model.TokensPath = viper.GetString(key)
	case "model.data_dir_path":
		c.Model.DataDirPath = viper.GetString(key)
	case "speaker_id":
		c.SpeakerID = viper.GetInt(key)
	case "speed":
		c.Speed = viper.GetFloat64(key)
	case "max_words":
		c.MaxWords = viper.GetInt(key)
	case "cache.enabled":
		c.Cache.Enabled = viper.GetBool(key)
	case "bus.embedded":
		c.Bus.Embedded = viper.GetBool(key)
	case "bus.port":
		c.Bus.Port = viper.GetInt(key)
	case "metrics.addr":
		c.Metrics.Addr = viper.GetString(key)
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", defaultConfigFile, "config file")
	flags.BoolVar(&debug, "debug", false, "log debug output")
	flags.StringP("engine", "e", "", fmt.Sprintf("synthesis engine (%s)", strings.Join(engines.Names(), ", ")))
	flags.StringP("model", "m", "", "path to the voice model")
	flags.String("tokens", "", "path to the voice config (defaults to MODEL.json)")
	flags.String("data-dir", "", "path to the phonemizer data directory")
	flags.IntP("speaker", "s", 0, "speaker id for multi-speaker models")
	flags.Float64P("speed", "r", 1.0, "speech rate multiplier")
	flags.Int("max-words", 0, "maximum words per synthesized chunk")
	flags.Bool("cache", false, "cache synthesized chunks")

	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	for flag, key := range flagKeys {
		if f := flags.Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
	tts.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(speakCmd, saveCmd, serveCmd, historyCmd, inspectCmd, cacheCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, tts.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, tts.AppName)}, dirs...)
	}

	if c := os.Getenv("CHUNKVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(tts.AppName)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		defaultConfigFile = used
		return
	}

	defaultConfigFile = filepath.Join(dirs[0], tts.AppName+".yml")
	configFile = defaultConfigFile
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
