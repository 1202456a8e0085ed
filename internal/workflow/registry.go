// Package workflow holds the WorkflowDefinition registry: a name to
// argv-builder mapping seeded with four static workflows plus a
// dynamic-script discovery path, grounded on the original service's
// WORKFLOW_REGISTRY / register_dynamic_script_workflow.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aglm/taskqueue/internal/queuepayload"
)

// Definition is an immutable, in-memory workflow recipe: a pure argv
// builder, a timeout, and a human-readable description.
type Definition struct {
	Name        string
	Description string
	Timeout     time.Duration
	BuildArgv   func(payload queuepayload.Payload) ([]string, error)
}

// Config carries the process-wide settings argv builders read from the
// environment, mirroring the original service's PHONE_AGENT_*/AGLM_* vars.
type Config struct {
	Interpreter        string // e.g. "python3"; defaults applied by NewRegistry
	ProjectRoot        string
	WorkflowScriptsDir string // directory dynamic scripts are discovered in

	ModelBaseURL        string
	ModelName           string
	ModelAPIKey         string
	DeviceID            string
	DeployTimeout       time.Duration
	DeployMessagesFile  string
}

// ErrNotRegistered is returned by Resolve when name is neither a static nor
// a dynamically-discoverable workflow.
var ErrNotRegistered = fmt.Errorf("workflow: not registered")

// Registry holds the name -> Definition mapping. Dynamic registrations are
// cached and never re-resolved once a name has been registered; a lookup
// that finds no script is not cached.
type Registry struct {
	cfg Config

	mu    sync.RWMutex
	defs  map[string]*Definition
}

// NewRegistry seeds the four static workflows (deployment_check,
// report_stub, travel_plan, echo) per spec.md §4.3.
func NewRegistry(cfg Config) *Registry {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.DeployTimeout == 0 {
		cfg.DeployTimeout = 300 * time.Second
	}
	r := &Registry{cfg: cfg, defs: map[string]*Definition{}}
	r.seed()
	return r
}

func (r *Registry) seed() {
	r.defs["deployment_check"] = &Definition{
		Name:        "deployment_check",
		Description: "Checks deployment/service health via the phone agent.",
		Timeout:     r.cfg.DeployTimeout,
		BuildArgv:   r.buildDeploymentCheckCmd,
	}
	r.defs["report_stub"] = &Definition{
		Name:        "report_stub",
		Description: "Queries a usage/traffic report via the phone agent.",
		Timeout:     120 * time.Second,
		BuildArgv:   r.buildReportStubCmd,
	}
	r.defs["travel_plan"] = &Definition{
		Name:        "travel_plan",
		Description: "Builds a travel plan via the dedicated travel_plan workflow script.",
		Timeout:     1800 * time.Second,
		BuildArgv:   r.buildTravelPlanCmd,
	}
	r.defs["echo"] = &Definition{
		Name:        "echo",
		Description: "Default fallback workflow: echoes back the detected intent and content.",
		Timeout:     60 * time.Second,
		BuildArgv:   r.buildEchoCmd,
	}
}

// Resolve implements the order from spec.md §4.4: use a registered
// workflow by name, else attempt dynamic script registration, else
// ErrNotRegistered (caller falls through to intent classification).
func (r *Registry) Resolve(taskType string) (*Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[taskType]
	r.mu.RUnlock()
	if ok {
		return def, nil
	}
	return r.registerDynamic(taskType)
}

// Get returns a definition by exact name, or ok=false.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// registerDynamic checks for workflows/{taskType}.py; if present, registers
// and caches a new Definition whose argv runs that script.
func (r *Registry) registerDynamic(taskType string) (*Definition, error) {
	scriptsDir := r.cfg.WorkflowScriptsDir
	if scriptsDir == "" {
		scriptsDir = filepath.Join(r.cfg.ProjectRoot, "workflows")
	}
	scriptPath := filepath.Join(scriptsDir, taskType+".py")

	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.defs[taskType]; ok {
		return def, nil
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, taskType)
	}

	def := &Definition{
		Name:        taskType,
		Description: fmt.Sprintf("Dynamically registered script workflow at %s.", scriptPath),
		Timeout:     300 * time.Second,
		BuildArgv: func(payload queuepayload.Payload) ([]string, error) {
			argv := []string{r.cfg.Interpreter, scriptPath}
			if len(payload.ScriptArgs) > 0 {
				argv = append(argv, payload.ScriptArgs...)
			} else {
				argv = append(argv, payload.Content)
			}
			return argv, nil
		},
	}
	r.defs[taskType] = def
	return def, nil
}

func (r *Registry) buildDeploymentCheckCmd(payload queuepayload.Payload) ([]string, error) {
	argv := []string{r.cfg.Interpreter, filepath.Join(r.cfg.ProjectRoot, "main.py")}
	argv = append(argv, r.modelFlags()...)
	if r.cfg.DeployMessagesFile != "" {
		argv = append(argv, "--messages-file", r.cfg.DeployMessagesFile)
	}
	if len(payload.ScriptArgs) > 0 {
		argv = append(argv, payload.ScriptArgs...)
	} else {
		argv = append(argv, "--prompt", payload.Content)
	}
	return argv, nil
}

func (r *Registry) buildReportStubCmd(payload queuepayload.Payload) ([]string, error) {
	argv := []string{r.cfg.Interpreter, filepath.Join(r.cfg.ProjectRoot, "main.py")}
	argv = append(argv, r.modelFlags()...)
	if len(payload.ScriptArgs) > 0 {
		argv = append(argv, payload.ScriptArgs...)
	} else {
		argv = append(argv, "--prompt", payload.Content)
	}
	return argv, nil
}

func (r *Registry) buildTravelPlanCmd(payload queuepayload.Payload) ([]string, error) {
	argv := []string{r.cfg.Interpreter, filepath.Join(r.cfg.ProjectRoot, "workflows", "travel_plan.py")}
	if len(payload.ScriptArgs) > 0 {
		argv = append(argv, payload.ScriptArgs...)
	} else {
		argv = append(argv, "--note", payload.Content)
	}
	argv = append(argv, r.modelFlags()...)
	if r.cfg.DeviceID != "" {
		argv = append(argv, "--device-id", r.cfg.DeviceID)
	}
	return argv, nil
}

func (r *Registry) buildEchoCmd(payload queuepayload.Payload) ([]string, error) {
	msg := fmt.Sprintf("Received intent=%s: %s", payload.Intent, payload.Content)
	return []string{r.cfg.Interpreter, "-c", fmt.Sprintf("print(%q)", msg)}, nil
}

func (r *Registry) modelFlags() []string {
	var flags []string
	if r.cfg.ModelBaseURL != "" {
		flags = append(flags, "--base-url", r.cfg.ModelBaseURL)
	}
	if r.cfg.ModelAPIKey != "" {
		flags = append(flags, "--apikey", r.cfg.ModelAPIKey)
	}
	if r.cfg.ModelName != "" {
		flags = append(flags, "--model", r.cfg.ModelName)
	}
	return flags
}
