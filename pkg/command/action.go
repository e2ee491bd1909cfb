package command

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"epibridge/pkg/apis/response"
	"epibridge/pkg/runtime"
	"epibridge/pkg/utils/uuidutil"
)

// ScriptRunner executes a named script on the business system.
type ScriptRunner interface {
	RunScript(ctx context.Context, name string, params map[string]interface{}) (map[string]interface{}, error)
}

// ActionCatalogue is the registry view the engine needs.
type ActionCatalogue interface {
	Action(name string) (*runtime.Action, bool)
	ActionList() []*runtime.Action
}

// Engine fires actions. Three paths in: an explicit API call, a schedule
// tick, and a detected signal change.
type Engine struct {
	snapshot func() ActionCatalogue
	runner   ScriptRunner
	updates  <-chan *runtime.SignalUpdate
	record   RecordFunc

	mu      sync.Mutex
	tickers map[string]*actionTicker
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type actionTicker struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewEngine(snapshot func() ActionCatalogue, runner ScriptRunner, updates <-chan *runtime.SignalUpdate, record RecordFunc) *Engine {
	return &Engine{
		snapshot: snapshot,
		runner:   runner,
		updates:  updates,
		record:   record,
		tickers:  make(map[string]*actionTicker),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the signal-change listener. Call Rebuild afterwards to
// arm scheduled actions.
func (e *Engine) Start() {
	go e.listen()
}

func (e *Engine) listen() {
	defer close(e.doneCh)
	for {
		select {
		case update, ok := <-e.updates:
			if !ok {
				return
			}
			e.onSignalChange(update)
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) onSignalChange(update *runtime.SignalUpdate) {
	snapshot := e.snapshot()
	if snapshot == nil {
		return
	}
	for _, action := range snapshot.ActionList() {
		if action.Trigger != runtime.TriggerSignalChange || !action.Enabled {
			continue
		}
		if action.SignalName != update.SignalName {
			continue
		}
		if !conditionMet(action, update.Value) {
			continue
		}
		if _, err := e.Execute(context.Background(), action.Name, map[string]interface{}{
			"signal_name": update.SignalName,
			"value":       update.Value,
		}); err != nil {
			klog.V(2).InfoS("Triggered action failed", "action", action.Name, "err", err)
		}
	}
}

// Rebuild re-arms scheduled actions from the current snapshot. Called
// after every catalogue load and refresh.
func (e *Engine) Rebuild() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, t := range e.tickers {
		close(t.stopCh)
		<-t.doneCh
		delete(e.tickers, name)
	}

	snapshot := e.snapshot()
	if snapshot == nil {
		return
	}
	for _, action := range snapshot.ActionList() {
		if action.Trigger != runtime.TriggerInterval || !action.Enabled || action.IntervalMs == 0 {
			continue
		}
		t := &actionTicker{stopCh: make(chan struct{}), doneCh: make(chan struct{})}
		e.tickers[action.Name] = t
		go e.tick(action.Name, time.Duration(action.IntervalMs)*time.Millisecond, t)
		klog.V(2).InfoS("Armed scheduled action", "action", action.Name, "intervalMs", action.IntervalMs)
	}
}

func (e *Engine) tick(name string, interval time.Duration, t *actionTicker) {
	defer close(t.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := e.Execute(context.Background(), name, nil); err != nil {
				klog.V(2).InfoS("Scheduled action failed", "action", name, "err", err)
			}
		case <-t.stopCh:
			return
		case <-e.stopCh:
			return
		}
	}
}

// Execute runs one action now, whatever its trigger. Request parameters
// override the action's configured defaults.
func (e *Engine) Execute(ctx context.Context, name string, params map[string]interface{}) (map[string]interface{}, error) {
	snapshot := e.snapshot()
	if snapshot == nil {
		return nil, response.ErrCatalogueUnavailable
	}
	action, ok := snapshot.Action(name)
	if !ok {
		return nil, response.ErrActionNotFound(name)
	}
	if !action.Enabled {
		return nil, response.ErrActionDisabled(name)
	}

	merged := make(map[string]interface{}, len(action.Parameters)+len(params))
	for _, p := range action.Parameters {
		merged[p.Name] = p.Value
	}
	for k, v := range params {
		merged[k] = v
	}

	result, err := e.runner.RunScript(ctx, action.ScriptName, merged)
	e.recordExecution(action, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) recordExecution(action *runtime.Action, err error) {
	if e.record == nil {
		return
	}
	event := &runtime.Event{
		ID:        uuidutil.UUID(),
		Type:      runtime.EventActionExecution,
		Status:    runtime.EventSuccess,
		Signal:    action.SignalName,
		Action:    action.Name,
		Timestamp: time.Now(),
	}
	if err != nil {
		event.Status = runtime.EventFailure
		event.Message = err.Error()
	}
	e.record(event)
}

// Stop halts tickers and the change listener.
func (e *Engine) Stop() {
	e.mu.Lock()
	for name, t := range e.tickers {
		close(t.stopCh)
		<-t.doneCh
		delete(e.tickers, name)
	}
	e.mu.Unlock()
	close(e.stopCh)
	<-e.doneCh
}

// conditionMet gates a signal-change trigger against the action's literal.
// Numeric operands compare numerically, anything else as strings.
func conditionMet(action *runtime.Action, value interface{}) bool {
	switch action.Condition {
	case runtime.ConditionAny:
		return true
	case runtime.ConditionEquals:
		if vf, lf, ok := numericPair(value, action.Value); ok {
			return vf == lf
		}
		return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", action.Value)
	case runtime.ConditionGreaterThan:
		vf, lf, ok := numericPair(value, action.Value)
		return ok && vf > lf
	case runtime.ConditionLessThan:
		vf, lf, ok := numericPair(value, action.Value)
		return ok && vf < lf
	}
	return false
}

func numericPair(value, literal interface{}) (float64, float64, bool) {
	vf, ok := toFloat(value)
	if !ok {
		return 0, 0, false
	}
	lf, ok := toFloat(literal)
	if !ok {
		return 0, 0, false
	}
	return vf, lf, true
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
