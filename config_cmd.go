package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# OpenAI credentials. The OPENAI_API_KEY environment variable
# takes precedence over this file.
# api_key: "sk-..."
# base_url: ""

# Paragraph simplification
simplify_model: "gpt-4o-mini"
simplify_max_tokens: 300
simplify_temperature: 0.2

# Speech synthesis
speech_model: "tts-1"
voice: "alloy"
speed: 1.0

# Playback
sample_rate: 24000

# Pipeline
# How many synthesized sentences may wait for playback. Smaller
# values keep cost low when you stop early; larger values survive
# slow synthesis without gaps.
buffer_capacity: 3
synth_attempts: 1
retry_delay: "1s"
# External API calls per second
rate_limit: 3

# Caching
# redis_url: "redis://localhost:6379/0"
cache_ttl: "168h"
# audio_dir: ""
compression_level: 3
cache_skip: false
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the papervoice config file",
	Long:    "\nEdit the papervoice config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.",
	Example: "papervoice config\npapervoice config --config path/to/config.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("papervoice", configFile)
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

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if configFile == "" {
			scope := gap.NewScope(gap.User, "papervoice")
			dirs, err := scope.ConfigDirs()
			if err != nil || len(dirs) == 0 {
				return fmt.Errorf("could not find a configuration directory")
			}
			configFile = filepath.Join(dirs[0], "papervoice.yml")
		}
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
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
	}
	return nil
}
