package queueservice

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aglm/taskqueue/internal/broker"
	"github.com/aglm/taskqueue/internal/notifier"
	"github.com/aglm/taskqueue/internal/queuepayload"
	"github.com/aglm/taskqueue/internal/store"
	"github.com/aglm/taskqueue/internal/task"
	"github.com/aglm/taskqueue/internal/workflow"
)

// fakeBroker is a minimal in-memory list/hash broker speaking the same
// wire protocol as internal/broker.Client, so Service can be exercised
// end-to-end without a live broker process.
type fakeBroker struct {
	ln    net.Listener
	lists map[string][]string
	hash  map[string]map[string]string
}

func startFakeBroker(t *testing.T) *broker.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fb := &fakeBroker{ln: ln, lists: map[string][]string{}, hash: map[string]map[string]string{}}
	go fb.serve()
	t.Cleanup(func() { ln.Close() })
	port := ln.Addr().(*net.TCPAddr).Port
	return broker.New("127.0.0.1", port, 0, 2*time.Second)
}

func (fb *fakeBroker) serve() {
	for {
		conn, err := fb.ln.Accept()
		if err != nil {
			return
		}
		go fb.handle(conn)
	}
}

func (fb *fakeBroker) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := fb.readCommand(r)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		fmt.Fprint(conn, fb.dispatch(args))
	}
}

func (fb *fakeBroker) readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		lenLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimRight(lenLine, "\r\n")[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func (fb *fakeBroker) dispatch(args []string) string {
	switch strings.ToUpper(args[0]) {
	case "SELECT":
		return "+OK\r\n"
	case "LPUSH":
		key, val := args[1], args[2]
		fb.lists[key] = append([]string{val}, fb.lists[key]...)
		return fmt.Sprintf(":%d\r\n", len(fb.lists[key]))
	case "BRPOP":
		key := args[1]
		items := fb.lists[key]
		if len(items) == 0 {
			return "*-1\r\n"
		}
		val := items[len(items)-1]
		fb.lists[key] = items[:len(items)-1]
		return fmt.Sprintf("*2\r\n$%d\r\n%s\r\n$%d\r\n%s\r\n", len(key), key, len(val), val)
	case "HSET":
		key := args[1]
		if fb.hash[key] == nil {
			fb.hash[key] = map[string]string{}
		}
		created := int64(0)
		for i := 2; i+1 < len(args); i += 2 {
			if _, exists := fb.hash[key][args[i]]; !exists {
				created++
			}
			fb.hash[key][args[i]] = args[i+1]
		}
		return fmt.Sprintf(":%d\r\n", created)
	case "HGET":
		key, field := args[1], args[2]
		val, ok := fb.hash[key][field]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(val), val)
	case "LLEN":
		return fmt.Sprintf(":%d\r\n", len(fb.lists[args[1]]))
	default:
		return "-ERR unknown command\r\n"
	}
}

func newTestService(t *testing.T) (*Service, func(taskID string) *task.Task) {
	t.Helper()
	b := startFakeBroker(t)

	s, err := store.Open(store.DriverSQLite, "file::memory:?cache=shared")
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	t.Cleanup(func() { s.Close() })

	root := t.TempDir()
	scriptsDir := filepath.Join(root, "workflows")
	require.NoError(t, os.MkdirAll(scriptsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "greet.py"), []byte(`echo "hi $2"`), 0o755))

	registry := workflow.NewRegistry(workflow.Config{ProjectRoot: root, Interpreter: "sh"})

	svc := New(Config{
		QueueKey:            "aglm:task_queue",
		KeyPrefix:           "aglm:task",
		WorkerCount:         1,
		BRPopTimeoutSeconds: 1,
		ProjectRoot:         root,
	}, b, s, registry, notifier.NopNotifier{}, nil, nil)

	load := func(taskID string) *task.Task {
		loaded, err := s.LoadTask(context.Background(), taskID)
		require.NoError(t, err)
		return loaded
	}
	return svc, load
}

func TestEnqueueProducesDistinctIDsUnderConcurrency(t *testing.T) {
	svc, load := newTestService(t)
	ctx := context.Background()

	ids := make(chan string, 10)
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			id, _, _, err := svc.Enqueue(ctx, "alice", "hello", "", nil)
			ids <- id
			errs <- err
		}()
	}

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
		id := <-ids
		require.False(t, seen[id], "duplicate task id %s", id)
		seen[id] = true
		require.NotNil(t, load(id))
	}
}

func TestEndToEndEnqueueExecuteFinalize(t *testing.T) {
	svc, load := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	taskID, queueLen, _, err := svc.Enqueue(ctx, "bob", "hello", "greet", []string{"greet", "world"})
	require.NoError(t, err)
	require.Equal(t, int64(1), queueLen)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	g := svc.StartWorkers(workerCtx)
	require.NotNil(t, g)

	var loaded *task.Task
	require.Eventually(t, func() bool {
		loaded = load(taskID)
		return loaded != nil && loaded.Status.IsTerminal()
	}, 3*time.Second, 20*time.Millisecond)

	require.Equal(t, task.StatusSuccess, loaded.Status)
	require.Contains(t, loaded.ResultSummary, "hi world")
}

func TestFinalizeIsIdempotent(t *testing.T) {
	svc, load := newTestService(t)
	ctx := context.Background()

	taskID, _, _, err := svc.Enqueue(ctx, "carol", "x", "", nil)
	require.NoError(t, err)

	pl := queuepayload.Payload{ID: taskID, User: "carol", Workflow: "echo"}
	require.NoError(t, svc.Finalize(ctx, pl, task.StatusSuccess, "same result", false))
	first := load(taskID)

	require.NoError(t, svc.Finalize(ctx, pl, task.StatusSuccess, "same result", false))
	second := load(taskID)

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.ResultSummary, second.ResultSummary)
}

func TestFinalizeDefaultsEmptyResult(t *testing.T) {
	svc, load := newTestService(t)
	ctx := context.Background()
	taskID, _, _, err := svc.Enqueue(ctx, "dave", "x", "", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Finalize(ctx, queuepayload.Payload{ID: taskID, User: "dave", Workflow: "echo"}, task.StatusSuccess, "", false))
	loaded := load(taskID)
	require.Equal(t, noResultMessage, loaded.ResultSummary)
}

func TestTrimToLastRunesBoundary(t *testing.T) {
	long := strings.Repeat("a", 2001)
	trimmed := trimToLastRunes(long, maxResultRunes)
	require.Len(t, []rune(trimmed), maxResultRunes)
	require.Equal(t, long[1:], trimmed)
}
