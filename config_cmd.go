package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# synthesis engine: mock or piper
engine: "mock"
# playback format requested from the audio device
sample_rate: 22050
channels: 1
# maximum words per synthesized chunk
max_words: 15
speaker_id: 0
speed: 1.0

# voice model files (piper)
model:
  # model_path: "~/voices/en_US-amy-medium.onnx"
  # tokens_path: "~/voices/en_US-amy-medium.onnx.json"
  # data_dir_path: "/usr/share/espeak-ng-data"

# where rendered files go; empty values use platform defaults
output:
  # music_dir: "~/Music"
  # private_dir: ""
  # cache_dir: ""

playback:
  buffer: "100ms"
  max_queued: "30s"
  volume_events_per_second: 20

piper:
  # executable, optionally followed by extra arguments
  command: "piper"
  timeout: "30s"
  noise_scale: 0.667
  noise_w: 0.8

# tone engine for demos and tests
mock:
  sample_rate: 22050
  words_per_minute: 150
  frequency: 440

# cache synthesized chunks in memory and on disk
cache:
  enabled: false
  memory_entries: 256
  ttl: "1h"
  compression_level: 3
  max_disk_mb: 100

history:
  enabled: true

# NATS command surface used by "serve" and "speak --remote"
bus:
  url: "nats://127.0.0.1:4222"
  subject_prefix: "chunkvoice"
  embedded: false
  host: "127.0.0.1"
  port: 4222

metrics:
  addr: ":9464"
`

var printConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the chunkvoice config file",
	Long:    paragraph(fmt.Sprintf("\n%s the chunkvoice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("chunkvoice config\nchunkvoice config --print\nchunkvoice config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if printConfig {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("unable to encode config: %w", err)
			}
			return enc.Close() //nolint:wrapcheck
		}

		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("chunkvoice", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration as YAML")
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if configFile == "" {
		return errors.New("no configuration directory found")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
