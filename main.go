package main

import (
	"fmt"
	"os"

	"github.com/atomicstack/chatterm/internal/app"
	"github.com/atomicstack/chatterm/internal/config"
	"github.com/atomicstack/chatterm/internal/logging"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"golang.org/x/term"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.MustLoad()
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 2
	}
	logging.Configure(cfg.Logging.FilePath)
	logging.SetTraceEnabled(cfg.Logging.Trace)

	events.App.Start(startupTracePayload(cfg))

	if err := app.Run(cfg.App); err != nil {
		logging.Error(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// startupTracePayload bundles runtime context for trace logging. The access
// token never appears in it.
func startupTracePayload(cfg config.Config) map[string]interface{} {
	flags := make(map[string]interface{}, len(cfg.Flags)+2)
	for k, v := range cfg.Flags {
		flags[k] = v
	}
	flags["trace"] = cfg.Logging.Trace
	flags["logFile"] = cfg.Logging.FilePath

	payload := map[string]interface{}{
		"argv":       cfg.Args,
		"flags":      flags,
		"config":     redacted(cfg),
		"configFile": cfg.ConfigFile,
		"logPath":    logging.Path(),
		"tty":        collectTTYDetails(),
	}
	addEnv := func(key string, value string, err error) {
		if err != nil {
			payload[key+"Error"] = err.Error()
			return
		}
		payload[key] = value
	}
	exe, err := os.Executable()
	addEnv("executable", exe, err)
	cwd, err := os.Getwd()
	addEnv("cwd", cwd, err)
	return payload
}

// redacted hides the access token from trace output.
func redacted(cfg config.Config) config.Config {
	if cfg.App.Token != "" {
		cfg.App.Token = "[redacted]"
	}
	cfg.App.Channels = append([]string(nil), cfg.App.Channels...)
	return cfg
}

type ttyDetails struct {
	Detected *ttySize    `json:"detected,omitempty"`
	Probes   []ttyProbe `json:"probes"`
}

type ttySize struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ttyProbe struct {
	Name       string `json:"name"`
	IsTerminal bool   `json:"is_terminal"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Error      string `json:"error,omitempty"`
}

// collectTTYDetails records which standard streams are terminals. The first
// terminal with a readable size is reported as detected; interactive runs
// hand that terminal to the child program.
func collectTTYDetails() ttyDetails {
	var details ttyDetails
	for _, f := range []*os.File{os.Stdin, os.Stdout, os.Stderr} {
		probe := probeTTY(f)
		details.Probes = append(details.Probes, probe)
		if details.Detected == nil && probe.IsTerminal && probe.Error == "" {
			details.Detected = &ttySize{Source: probe.Name, Width: probe.Width, Height: probe.Height}
		}
	}
	return details
}

func probeTTY(f *os.File) ttyProbe {
	probe := ttyProbe{Name: streamName(f)}
	fd := int(f.Fd())
	if fd < 0 || !term.IsTerminal(fd) {
		return probe
	}
	probe.IsTerminal = true
	width, height, err := term.GetSize(fd)
	if err != nil {
		probe.Error = err.Error()
		return probe
	}
	probe.Width, probe.Height = width, height
	return probe
}

func streamName(f *os.File) string {
	switch f {
	case os.Stdin:
		return "stdin"
	case os.Stdout:
		return "stdout"
	case os.Stderr:
		return "stderr"
	}
	return f.Name()
}
