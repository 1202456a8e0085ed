// Package notifier sends the outbound reply notifying a user of a finished
// task's outcome, grounded on the teacher's scheduler Notifier interface
// (fan-out-capable, nil-safe) but backed by the original service's reply
// subprocess rather than a chat API.
package notifier

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/aglm/taskqueue/internal/shared/logging"
)

// Notifier delivers a composed message to user about a finished task.
type Notifier interface {
	Notify(ctx context.Context, user, message string) error
}

// ScriptNotifier spawns scripts/reply_msg.py --user <user> --message
// <message>, matching the original service's trigger_reply. The reply
// subprocess runs without a timeout; its failure is logged but never
// affects task state, matching spec.md §4.7.
type ScriptNotifier struct {
	Interpreter string
	ScriptPath  string
	WorkingDir  string
	BaseURL     string
	APIKey      string
	Model       string
	logger      logging.Logger
}

// NewScriptNotifier builds a ScriptNotifier. logger may be nil.
func NewScriptNotifier(interpreter, scriptPath, workingDir string, logger logging.Logger) *ScriptNotifier {
	return &ScriptNotifier{
		Interpreter: interpreter,
		ScriptPath:  scriptPath,
		WorkingDir:  workingDir,
		logger:      logging.OrNop(logger),
	}
}

// Notify implements Notifier.
func (n *ScriptNotifier) Notify(ctx context.Context, user, message string) error {
	argv := []string{n.Interpreter, n.ScriptPath, "--user", user, "--message", message}
	if n.BaseURL != "" {
		argv = append(argv, "--base-url", n.BaseURL)
	}
	if n.APIKey != "" {
		argv = append(argv, "--apikey", n.APIKey)
	}
	if n.Model != "" {
		argv = append(argv, "--model", n.Model)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = n.WorkingDir
	if err := cmd.Run(); err != nil {
		n.logger.Warn("reply notification failed for user %s: %v", user, err)
		return fmt.Errorf("notifier: reply script: %w", err)
	}
	return nil
}

// NopNotifier discards every notification; queueservice.New uses it when no
// Notifier is supplied.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string, string) error { return nil }

// ComposeMessage builds the reply text exactly as the original service did:
// "任务 {task_id} ({workflow}) {status}。\n结果: {result_text}".
func ComposeMessage(taskID, workflow, status, resultText string) string {
	return fmt.Sprintf("任务 %s (%s) %s。\n结果: %s", taskID, workflow, status, resultText)
}
