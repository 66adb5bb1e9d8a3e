// Package ui contains the Bubble Tea program that owns the chat state.
// Model.Update is the single owner goroutine: every change to ChatState
// happens inside a handler it dispatches to.
//
// Message flow:
//   - Bubble Tea invokes Model.Update with incoming messages, which are routed
//     through a typed handler registry so each tea.Msg is handled by a focused
//     function (key presses, task results, program output, presence updates,
//     backend polls).
//   - Background producers never touch state. Owner-side waits (tasks.go)
//     block on the task scheduler, the program log and the presence feed from
//     tea.Cmd goroutines and hand each value back as a message. Each handler
//     applies the value and re-arms its wait.
//   - Key actions (keys.go) run through the internal/ui/command bus so every
//     invocation is traced. Actions that suspend the terminal return the
//     tea.Exec command produced by proc.Runner.InteractiveRun.
//
// Backend interactions:
//   - A backend.Watcher polls the followed channel; Update waits for its
//     events and hands them to the dispatcher, which installs posts through
//     the ingestion pipeline and queues author presence lookups.
//
// The Harness type drives Update synchronously for tests. It disables the
// blocking waits and delivers their values through Settle instead.
package ui
