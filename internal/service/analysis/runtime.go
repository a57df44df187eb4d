package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/qmuntal/stateless"
	"go.uber.org/zap"
)

// ErrNotReady is returned by Analyze before initialization has succeeded.
var ErrNotReady = errors.New("analysis runtime not ready")

// Lifecycle states of the runtime.
const (
	StatePending      = "pending"
	StateInitializing = "initializing"
	StateReady        = "ready"
	StateFailed       = "failed"
)

const (
	triggerStart   = "start"
	triggerSucceed = "succeed"
	triggerFail    = "fail"
)

// Status describes the runtime for the status endpoint and banners.
type Status struct {
	State  string `json:"state"`
	Engine string `json:"engine"`
	Error  string `json:"error,omitempty"`
}

// Runtime owns an Engine and its asynchronous bootstrap. Analysis requests
// made before the bootstrap succeeds fail fast with ErrNotReady.
type Runtime struct {
	engine Engine
	logger *zap.Logger
	fsm    *stateless.StateMachine

	once    sync.Once
	done    chan struct{}
	mu      sync.RWMutex
	initErr error
	hooks   []func(error)
}

// NewRuntime wraps engine in a pending runtime.
func NewRuntime(engine Engine, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsm := stateless.NewStateMachine(StatePending)
	fsm.Configure(StatePending).Permit(triggerStart, StateInitializing)
	fsm.Configure(StateInitializing).
		Permit(triggerSucceed, StateReady).
		Permit(triggerFail, StateFailed)
	fsm.Configure(StateReady)
	fsm.Configure(StateFailed)

	return &Runtime{
		engine: engine,
		logger: logger.With(zap.String("component", "analysis-runtime"), zap.String("engine", engine.Name())),
		fsm:    fsm,
		done:   make(chan struct{}),
	}
}

// OnFailure registers fn to be called when initialization fails. If it has
// already failed, fn runs immediately.
func (r *Runtime) OnFailure(fn func(error)) {
	r.mu.Lock()
	err := r.initErr
	if err == nil {
		r.hooks = append(r.hooks, fn)
	}
	r.mu.Unlock()

	if err != nil {
		fn(err)
	}
}

// Start launches initialization in the background.
func (r *Runtime) Start(ctx context.Context) {
	go func() {
		_ = r.Initialize(ctx)
	}()
}

// Initialize runs the engine bootstrap once and waits for it to settle.
func (r *Runtime) Initialize(ctx context.Context) error {
	r.once.Do(func() {
		go r.bootstrap(ctx)
	})

	select {
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) bootstrap(ctx context.Context) {
	defer close(r.done)

	if err := r.fsm.Fire(triggerStart); err != nil {
		r.fail(fmt.Errorf("start runtime: %w", err))
		return
	}
	r.logger.Info("initializing analysis runtime")

	if err := r.engine.Initialize(ctx); err != nil {
		r.fail(err)
		return
	}

	if err := r.fsm.Fire(triggerSucceed); err != nil {
		r.fail(err)
		return
	}
	r.logger.Info("analysis runtime ready")
}

func (r *Runtime) fail(err error) {
	if fireErr := r.fsm.Fire(triggerFail); fireErr != nil {
		r.logger.Debug("fail transition rejected", zap.Error(fireErr))
	}

	r.mu.Lock()
	r.initErr = err
	hooks := r.hooks
	r.hooks = nil
	r.mu.Unlock()

	r.logger.Error("analysis runtime failed to initialize", zap.Error(err))
	for _, fn := range hooks {
		fn(err)
	}
}

// Ready reports whether Analyze can be called.
func (r *Runtime) Ready() bool {
	ok, err := r.fsm.IsInState(StateReady)
	return err == nil && ok
}

// Status snapshots the lifecycle state.
func (r *Runtime) Status() Status {
	state, _ := r.fsm.MustState().(string)
	status := Status{State: state, Engine: r.engine.Name()}

	r.mu.RLock()
	if r.initErr != nil {
		status.State = StateFailed
		status.Error = r.initErr.Error()
	}
	r.mu.RUnlock()
	return status
}

// Analyze runs the engine over text and decodes its output.
func (r *Runtime) Analyze(ctx context.Context, text string) (Result, error) {
	if !r.Ready() {
		return Result{}, ErrNotReady
	}

	raw, err := r.engine.Run(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("%s engine: %w", r.engine.Name(), err)
	}
	return decodeResult(raw, text)
}
