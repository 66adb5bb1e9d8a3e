package events

import "github.com/atomicstack/chatterm/internal/logging"

type TaskTracer struct{}

var Task = TaskTracer{}

func (TaskTracer) Submit(name, priority string) {
	logging.Trace("task.submit", map[string]interface{}{"name": name, "priority": priority})
}

func (TaskTracer) Done(name string, hasContinuation bool) {
	logging.Trace("task.done", map[string]interface{}{"name": name, "continuation": hasContinuation})
}

func (TaskTracer) Fail(name string, err error) {
	if err == nil {
		return
	}
	logging.Trace("task.fail", map[string]interface{}{"name": name, "error": err.Error()})
}

func (TaskTracer) Apply(name string) {
	logging.Trace("task.apply", map[string]interface{}{"name": name})
}
