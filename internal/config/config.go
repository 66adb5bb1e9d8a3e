package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atomicstack/chatterm/internal/app"
	"github.com/atomicstack/chatterm/internal/opener"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config captures runtime configuration for the application.
type Config struct {
	App        app.Config
	Logging    Logging
	ConfigFile string
	Flags      map[string]string
	Args       []string
}

type Logging struct {
	FilePath string
	Trace    bool
}

// fileConfig mirrors the layered keys: defaults, yaml file, CHATTERM_* env.
type fileConfig struct {
	Server struct {
		URL      string   `koanf:"url"`
		Token    string   `koanf:"token"`
		Channels []string `koanf:"channels"`
	} `koanf:"server"`
	Opener struct {
		Command string `koanf:"command"`
		Mode    string `koanf:"mode"`
	} `koanf:"opener"`
	Logging struct {
		File  string `koanf:"file"`
		Trace bool   `koanf:"trace"`
	} `koanf:"logging"`
	Refresh struct {
		Interval time.Duration `koanf:"interval"`
	} `koanf:"refresh"`
	API struct {
		Rate float64 `koanf:"rate"`
	} `koanf:"api"`
}

const (
	envPrefix         = "CHATTERM_"
	appDirName        = "chatterm"
	defaultConfigName = "config.yaml"
)

var defaults = map[string]interface{}{
	"opener.mode":      string(opener.ModeLogged),
	"refresh.interval": "15s",
	"api.rate":         10.0,
}

var userConfigDir = os.UserConfigDir

// Load parses configuration from CLI arguments, the environment and the
// config file.
func Load() (Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs allows tests to supply specific args. Precedence is flags, then
// CHATTERM_* environment variables (including any -env-file), then the yaml
// file, then defaults.
func LoadArgs(args []string) (Config, error) {
	fset := flag.NewFlagSet("chatterm", flag.ContinueOnError)
	fset.SetOutput(new(strings.Builder))

	configFile := fset.String("config", "", "path to the yaml config file")
	envFile := fset.String("env-file", "", "dotenv file with CHATTERM_* variables")
	server := fset.String("server", "", "chat server base URL")
	token := fset.String("token", "", "personal access token")
	channels := fset.String("channels", "", "comma separated channel IDs to open")
	openCmd := fset.String("opener", "", "program used to open links and attachments")
	openMode := fset.String("opener-mode", "", "opener mode: logged or interactive")
	trace := fset.Bool("trace", false, "enable verbose JSON trace logging")
	logFile := fset.String("log-file", "", "path to the log file")
	refresh := fset.Duration("refresh", 0, "poll interval for the current channel")
	apiRate := fset.Float64("rate", 0, "maximum API requests per second")

	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	if *envFile != "" {
		// existing variables win over the file
		if err := godotenv.Load(*envFile); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return Config{}, err
		}
	}

	path, explicit := *configFile, *configFile != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
			path = ""
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	overrides := map[string]interface{}{}
	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			overrides["server.url"] = *server
		case "token":
			overrides["server.token"] = *token
		case "channels":
			overrides["server.channels"] = *channels
		case "opener":
			overrides["opener.command"] = *openCmd
		case "opener-mode":
			overrides["opener.mode"] = *openMode
		case "trace":
			overrides["logging.trace"] = *trace
		case "log-file":
			overrides["logging.file"] = *logFile
		case "refresh":
			overrides["refresh.interval"] = refresh.String()
		case "rate":
			overrides["api.rate"] = *apiRate
		}
	})
	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return Config{}, err
		}
	}

	var fc fileConfig
	if err := k.Unmarshal("", &fc); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg := Config{
		App: app.Config{
			ServerURL:         strings.TrimSpace(fc.Server.URL),
			Token:             strings.TrimSpace(fc.Server.Token),
			Channels:          splitChannels(fc.Server.Channels),
			OpenerCommand:     strings.TrimSpace(fc.Opener.Command),
			OpenerMode:        fc.Opener.Mode,
			RefreshInterval:   fc.Refresh.Interval,
			RequestsPerSecond: fc.API.Rate,
		},
		Logging: Logging{
			FilePath: fc.Logging.File,
			Trace:    fc.Logging.Trace,
		},
		ConfigFile: path,
		Flags: map[string]string{
			"server":      fc.Server.URL,
			"channels":    strings.Join(fc.Server.Channels, ","),
			"opener":      fc.Opener.Command,
			"opener-mode": fc.Opener.Mode,
			"trace":       strconv.FormatBool(fc.Logging.Trace),
			"log-file":    fc.Logging.File,
			"refresh":     fc.Refresh.Interval.String(),
			"rate":        strconv.FormatFloat(fc.API.Rate, 'f', -1, 64),
		},
		Args: append([]string(nil), args...),
	}
	return cfg, nil
}

// envKey maps CHATTERM_OPENER_COMMAND to opener.command.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
}

func defaultConfigPath() string {
	dir, err := userConfigDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, appDirName, defaultConfigName)
}

// splitChannels accepts both yaml lists and comma separated values.
func splitChannels(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// MustLoad returns configuration or exits.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Validate ensures required minimum configuration is present.
func Validate(cfg Config) error {
	if cfg.App.ServerURL == "" {
		return errors.New("server url is required (-server or CHATTERM_SERVER_URL)")
	}
	if len(cfg.App.Channels) == 0 {
		return errors.New("at least one channel is required (-channels or CHATTERM_SERVER_CHANNELS)")
	}
	if _, err := opener.ParseMode(cfg.App.OpenerMode); err != nil {
		return err
	}
	if cfg.App.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be > 0 (got %s)", cfg.App.RefreshInterval)
	}
	if cfg.App.RequestsPerSecond < 0 {
		return fmt.Errorf("rate must be >= 0 (got %g)", cfg.App.RequestsPerSecond)
	}
	return nil
}
