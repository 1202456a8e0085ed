// Package queueservice wires together intake/enqueue (C5), the worker pool
// (C6), and the finalizer/notifier (C7) into one cohesive service, grounded
// on the original implementation's enqueue_task/worker_loop/finalize_task.
package queueservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aglm/taskqueue/internal/broker"
	"github.com/aglm/taskqueue/internal/intent"
	"github.com/aglm/taskqueue/internal/notifier"
	"github.com/aglm/taskqueue/internal/observability"
	"github.com/aglm/taskqueue/internal/queuepayload"
	"github.com/aglm/taskqueue/internal/shared/async"
	"github.com/aglm/taskqueue/internal/shared/logging"
	"github.com/aglm/taskqueue/internal/subprocess"
	"github.com/aglm/taskqueue/internal/task"
	"github.com/aglm/taskqueue/internal/workflow"
)

const (
	noOutputMessage    = "无输出"
	noResultMessage    = "无详细结果"
	timeoutMessage     = "执行超时"
	buildFailedFormat  = "构建命令失败: %v"
	executionErrFormat = "执行异常: %v"
	maxResultRunes     = 2000
)

// Config carries the non-credential settings the service needs beyond what
// its collaborators (broker, store, registry) already encapsulate.
type Config struct {
	QueueKey     string // AGLM_TASK_QUEUE
	KeyPrefix    string // AGLM_TASK_PREFIX
	WorkerCount  int
	BRPopTimeoutSeconds int
	ProjectRoot  string
}

// Service implements C5 (intake), C6 (worker pool), and C7 (finalizer).
type Service struct {
	cfg      Config
	broker   *broker.Client
	store    task.Store
	registry *workflow.Registry
	notify   notifier.Notifier
	metrics  *observability.Metrics
	logger   logging.Logger

	started bool
	startMu sync.Mutex
}

// New builds a Service. metrics and logger may be nil.
func New(cfg Config, b *broker.Client, store task.Store, registry *workflow.Registry, notify notifier.Notifier, metrics *observability.Metrics, logger logging.Logger) *Service {
	if notify == nil {
		notify = notifier.NopNotifier{}
	}
	return &Service{
		cfg:      cfg,
		broker:   b,
		store:    store,
		registry: registry,
		notify:   notify,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
	}
}

func (s *Service) liveKey(taskID string) string {
	return fmt.Sprintf("%s:%s", s.cfg.KeyPrefix, taskID)
}

func nowEpochStr() string {
	return strconv.FormatFloat(float64(time.Now().UnixNano())/float64(time.Second), 'f', -1, 64)
}

// Enqueue implements C5. It mints a task id, resolves the workflow via
// task_type (falling through to dynamic registration, then intent
// classification), pushes onto the broker list, seeds the live status
// hash, persists the durable row, and appends the enqueue event, in that
// order per spec.md §4.5.
func (s *Service) Enqueue(ctx context.Context, user, content, taskType string, scriptArgs []string) (taskID string, queueLength int64, resolvedIntent intent.Result, err error) {
	if strings.TrimSpace(user) == "" {
		return "", 0, intent.Result{}, fmt.Errorf("queueservice: user is required")
	}

	taskID = mintTaskID()
	resolvedIntent, workflowName := s.resolveWorkflow(taskType, content)

	payload := queuepayload.Payload{
		ID:         taskID,
		User:       user,
		Content:    content,
		Intent:     resolvedIntent.Intent,
		Workflow:   workflowName,
		CreatedAt:  float64(time.Now().Unix()),
		TaskType:   taskType,
		ScriptArgs: scriptArgs,
	}
	payloadJSON, err := queuepayload.Marshal(payload)
	if err != nil {
		return "", 0, intent.Result{}, fmt.Errorf("queueservice: marshal payload: %w", err)
	}

	queueLength, err = s.broker.LPush(s.cfg.QueueKey, string(payloadJSON))
	if err != nil {
		return "", 0, intent.Result{}, fmt.Errorf("queueservice: lpush: %w", err)
	}

	if _, err := s.broker.HSet(s.liveKey(taskID), map[string]string{
		"status":     string(task.StatusPending),
		"created_at": nowEpochStr(),
		"intent":     resolvedIntent.Intent,
		"workflow":   workflowName,
		"user":       user,
		"content":    content,
		"task_type":  taskType,
	}); err != nil {
		return "", 0, intent.Result{}, fmt.Errorf("queueservice: seed live status: %w", err)
	}

	effectiveType := taskType
	if effectiveType == "" {
		effectiveType = workflowName
	}
	if err := s.store.PersistTask(ctx, taskID, user, effectiveType, payloadJSON); err != nil {
		return "", 0, intent.Result{}, fmt.Errorf("queueservice: persist task: %w", err)
	}

	if err := s.store.RecordEvent(ctx, taskID, "enqueue", task.StatusPending, content, "", ""); err != nil {
		return "", 0, intent.Result{}, fmt.Errorf("queueservice: record enqueue event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TasksEnqueued.Inc()
		s.metrics.QueueDepth.Set(float64(queueLength))
	}
	s.logger.Info("enqueued task %s for user %s (intent=%s workflow=%s)", taskID, user, resolvedIntent.Intent, workflowName)
	return taskID, queueLength, resolvedIntent, nil
}

// resolveWorkflow implements the resolution order from spec.md §4.4: an
// explicit, registered task_type wins; else dynamic script registration;
// else classify on content.
func (s *Service) resolveWorkflow(taskType, content string) (intent.Result, string) {
	if taskType != "" {
		if def, err := s.registry.Resolve(taskType); err == nil {
			return intent.Result{Intent: taskType, Workflow: def.Name}, def.Name
		}
	}
	result := intent.Detect(content)
	return result, result.Workflow
}

func mintTaskID() string {
	return "AGLM-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
}

// StartWorkers starts cfg.WorkerCount long-lived workers. It is idempotent:
// calling it twice is a no-op, matching spec.md §4.6's ensure_workers.
func (s *Service) StartWorkers(ctx context.Context) *errgroup.Group {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		g.Go(func() error {
			defer async.Recover(s.logger, workerID)
			s.runWorker(gctx, workerID)
			return nil
		})
	}
	return g
}

// runWorker implements C6's protocol: blocking-pop, execute, finalize,
// forever, until ctx is cancelled (graceful drain). Cancellation stops the
// loop before the next pop; a task already popped runs to completion.
func (s *Service) runWorker(ctx context.Context, workerID string) {
	logger := s.logger
	for {
		select {
		case <-ctx.Done():
			logger.Info("%s draining: context cancelled", workerID)
			return
		default:
		}

		_, raw, err := s.broker.BRPop(s.cfg.QueueKey, s.cfg.BRPopTimeoutSeconds)
		if err == broker.ErrNil {
			continue
		}
		if err != nil {
			logger.Error("%s brpop failed: %v", workerID, err)
			sleepOrDone(ctx, 2*time.Second)
			continue
		}

		var payload queuepayload.Payload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			logger.Error("%s malformed payload, dropping: %v", workerID, err)
			continue
		}

		if err := s.processTask(context.WithoutCancel(ctx), workerID, payload); err != nil {
			logger.Error("%s failed processing task %s: %v", workerID, payload.ID, err)
			sleepOrDone(ctx, 2*time.Second)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// processTask implements spec.md §4.6 steps 3-8 for one popped payload.
func (s *Service) processTask(ctx context.Context, workerID string, payload queuepayload.Payload) error {
	if s.metrics != nil {
		s.metrics.WorkersBusy.Inc()
		defer s.metrics.WorkersBusy.Dec()
	}

	if _, err := s.broker.HSet(s.liveKey(payload.ID), map[string]string{
		"status":     string(task.StatusRunning),
		"started_at": nowEpochStr(),
		"worker":     workerID,
	}); err != nil {
		return fmt.Errorf("seed running status: %w", err)
	}
	if err := s.store.RecordEvent(ctx, payload.ID, "start", task.StatusRunning, payload.Content, "", ""); err != nil {
		return fmt.Errorf("record start event: %w", err)
	}
	if err := s.store.UpdateTask(ctx, payload.ID, task.StatusRunning); err != nil {
		return fmt.Errorf("update task running: %w", err)
	}

	def, ok := s.registry.Get(payload.Workflow)
	if !ok {
		def, _ = s.registry.Get("echo")
	}

	spanCtx, span := observability.StartWorkflowSpan(ctx, payload.ID, def.Name)
	argv, buildErr := def.BuildArgv(payload)
	var status task.Status
	var resultText string
	if buildErr != nil {
		status = task.StatusFailed
		resultText = fmt.Sprintf(buildFailedFormat, buildErr)
	} else {
		status, resultText = s.runWorkflow(spanCtx, def, argv)
	}
	observability.MarkSpanResult(span, string(status), buildErr)
	span.End()

	return s.Finalize(ctx, payload, status, resultText, true)
}

func (s *Service) runWorkflow(ctx context.Context, def *workflow.Definition, argv []string) (task.Status, string) {
	start := time.Now()
	res, err := subprocess.Run(ctx, subprocess.Config{
		Argv:       argv,
		WorkingDir: s.cfg.ProjectRoot,
		Timeout:    def.Timeout,
	})
	if s.metrics != nil {
		s.metrics.WorkflowSeconds.WithLabelValues(def.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return task.StatusFailed, fmt.Sprintf(executionErrFormat, err)
	}
	if res.TimedOut {
		return task.StatusFailed, timeoutMessage
	}

	output := strings.TrimSpace(res.Stdout)
	if output == "" {
		output = strings.TrimSpace(res.Stderr)
	}
	if output == "" {
		output = noOutputMessage
	}
	status := task.StatusFailed
	if res.ExitCode == 0 {
		status = task.StatusSuccess
	}
	return status, trimToLastRunes(output, maxResultRunes)
}

func trimToLastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// Finalize implements C7. Every write here is last-writer-wins and trimmed
// identically, so repeated calls with the same arguments leave the same
// status, result, workflow and user in the live hash and the durable row.
// Each call rewrites finished_at and updated_at with the current time and
// appends another terminal event.
func (s *Service) Finalize(ctx context.Context, payload queuepayload.Payload, status task.Status, resultText string, notify bool) error {
	user, workflowName := s.recoverLiveMetadata(payload)

	resultText = strings.TrimSpace(resultText)
	if resultText == "" {
		resultText = noResultMessage
	}
	resultText = trimToLastRunes(resultText, maxResultRunes)

	if _, err := s.broker.HSet(s.liveKey(payload.ID), map[string]string{
		"status":       string(status),
		"finished_at":  nowEpochStr(),
		"final_result": resultText,
		"workflow":     workflowName,
		"user":         user,
	}); err != nil {
		return fmt.Errorf("queueservice: finalize hset: %w", err)
	}

	if err := s.store.UpdateTask(ctx, payload.ID, status, task.WithResult(resultText)); err != nil {
		return fmt.Errorf("queueservice: finalize update task: %w", err)
	}

	if err := s.store.RecordEvent(ctx, payload.ID, workflowName, status, "", resultText, ""); err != nil {
		return fmt.Errorf("queueservice: finalize record event: %w", err)
	}

	if s.metrics != nil {
		if status == task.StatusSuccess {
			s.metrics.TasksSucceeded.Inc()
		} else {
			s.metrics.TasksFailed.Inc()
		}
	}

	if notify && user != "" {
		message := notifier.ComposeMessage(payload.ID, workflowName, string(status), resultText)
		if err := s.notify.Notify(ctx, user, message); err != nil {
			s.logger.Warn("notify failed for task %s: %v", payload.ID, err)
		}
	}
	return nil
}

// recoverLiveMetadata fills in user/workflow from the live hash when the
// payload itself doesn't carry them (e.g. a /finish call from an external
// caller), matching the original's get_task_metadata: each field is
// independently best-effort, never failing the whole read.
func (s *Service) recoverLiveMetadata(payload queuepayload.Payload) (user, workflowName string) {
	user, workflowName = payload.User, payload.Workflow
	if user == "" {
		if v, err := s.broker.HGet(s.liveKey(payload.ID), "user"); err == nil {
			user = v
		}
	}
	if workflowName == "" {
		if v, err := s.broker.HGet(s.liveKey(payload.ID), "workflow"); err == nil {
			workflowName = v
		}
	}
	return user, workflowName
}
