package notifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComposeMessageMatchesOriginalTemplate(t *testing.T) {
	got := ComposeMessage("AGLM-ABCDEF01", "echo", "success", "OK")
	require.Equal(t, "任务 AGLM-ABCDEF01 (echo) success。\n结果: OK", got)
}

func TestScriptNotifierInvokesReplyScript(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "called.txt")
	script := filepath.Join(dir, "reply_msg.py")
	require.NoError(t, os.WriteFile(script, []byte(""), 0o644))

	n := NewScriptNotifier("sh", script, dir, nil)
	n.Interpreter = "sh"
	// Make the reply script a small shell script (run by the "sh"
	// interpreter) that writes its arguments to a marker file, so we can
	// assert it ran with the expected arguments.
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
echo "$@" > `+marker+`
`), 0o755))

	err := n.Notify(context.Background(), "alice", "hello")
	require.NoError(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Contains(t, string(data), "--user alice")
	require.Contains(t, string(data), "--message hello")
}

func TestNopNotifierNeverErrors(t *testing.T) {
	require.NoError(t, NopNotifier{}.Notify(context.Background(), "anyone", "anything"))
}
