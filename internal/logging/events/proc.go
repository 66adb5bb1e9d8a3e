package events

import "github.com/atomicstack/chatterm/internal/logging"

type ProcTracer struct{}

var Proc = ProcTracer{}

func (ProcTracer) Start(command string, args []string, interactive bool) {
	logging.Trace("proc.start", map[string]interface{}{"command": command, "args": args, "interactive": interactive})
}

func (ProcTracer) Exit(command string, code int) {
	logging.Trace("proc.exit", map[string]interface{}{"command": command, "code": code})
}

func (ProcTracer) SpawnFailed(command string, err error) {
	logging.Trace("proc.spawn-failed", map[string]interface{}{"command": command, "error": err.Error()})
}

func (ProcTracer) Suspend(channel string, markerInstalled bool) {
	logging.Trace("proc.suspend", map[string]interface{}{"channel": channel, "marker": markerInstalled})
}

func (ProcTracer) Resume(command string) {
	logging.Trace("proc.resume", map[string]interface{}{"command": command})
}
