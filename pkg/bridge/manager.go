package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"

	"epibridge/pkg/apis/response"
	"epibridge/pkg/catalogue"
	"epibridge/pkg/command"
	"epibridge/pkg/eventlog"
	"epibridge/pkg/poller"
	"epibridge/pkg/protocol/modbus"
	"epibridge/pkg/publisher"
	"epibridge/pkg/runtime"
	"epibridge/pkg/storage"
	"epibridge/pkg/utils/randutil"
	"epibridge/pkg/utils/uuidutil"
)

const dialTimeout = 5 * time.Second

type Config struct {
	ErpURL         string
	ErpAPIKey      string
	ErpAPISecret   string
	MqttBroker     string
	MqttClientID   string
	PollIntervalMs uint
}

type Option func(*Manager)

// WithDialer substitutes the protocol dialer, used by tests and by the
// simulator harness.
func WithDialer(dialer modbus.Dialer) Option {
	return func(m *Manager) { m.dialer = dialer }
}

// WithStore substitutes the persistence backend.
func WithStore(store storage.Storage) Option {
	return func(m *Manager) { m.store = store }
}

type Manager struct {
	cfg    *Config
	dialer modbus.Dialer

	store     storage.Storage
	client    *catalogue.Client
	registry  *catalogue.Registry
	pool      *modbus.Pool
	scheduler *poller.Scheduler
	detector  *publisher.Detector
	executor  *command.Executor
	engine    *command.Engine
	recorder  *eventlog.Recorder
	realtime  *publisher.MQTTPublisher

	meta *BridgeMeta

	settingsMu sync.RWMutex
	settings   *Settings

	closers []runtime.LabeledCloser
	stopCh  <-chan struct{}
}

func NewManager(cfg *Config, stop <-chan struct{}, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		dialer: modbus.TCPDialer(dialTimeout),
		stopCh: stop,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init brings every component up and performs the initial catalogue load.
// It fails only when neither the business system nor a persisted catalogue
// copy can serve; everything else degrades and logs.
func (m *Manager) Init() error {
	if m.store == nil {
		fs := &storage.FsClient{}
		fs.Init(storage.StoreGroupBridge)
		m.store = fs
	}

	m.loadMeta()
	m.loadSettings()

	m.client = catalogue.NewClient(m.cfg.ErpURL, m.cfg.ErpAPIKey, m.cfg.ErpAPISecret)
	m.registry = catalogue.NewRegistry(m.client, m.store)

	if m.cfg.MqttBroker != "" {
		realtime, err := publisher.NewMQTTPublisher(m.cfg.MqttBroker, m.cfg.MqttClientID, m.GetSettings().TopicPrefix)
		if err != nil {
			klog.ErrorS(err, "Running without realtime channel")
		} else {
			m.realtime = realtime
			m.closers = append(m.closers, runtime.LabeledCloser{Label: "mqttPublisher", Closer: realtime.Shutdown})
		}
	}

	m.recorder = eventlog.NewRecorder(eventlog.SinkFunc(func(ctx context.Context, e *runtime.Event) error {
		return m.client.CreateEvent(ctx, e)
	}))
	m.closers = append(m.closers, runtime.LabeledCloser{Label: "eventRecorder", Closer: m.recorder.Shutdown})

	var rt publisher.Realtime
	if m.realtime != nil {
		rt = m.realtime
	}
	m.detector = publisher.NewDetector(rt, m.recorder.Record)

	m.pool = modbus.NewPool(m.dialer, nil)
	m.closers = append(m.closers, runtime.LabeledCloser{Label: "sessionPool", Closer: m.pool.Shutdown})

	m.scheduler = poller.NewScheduler(m.pool, m.detector, m.recorder.Record, m.pollInterval())
	m.closers = append(m.closers, runtime.LabeledCloser{Label: "pollScheduler", Closer: func(context.Context) error {
		m.scheduler.Stop()
		return nil
	}})

	m.executor = command.NewExecutor(m.commandCatalogue, m.pool, m.detector, m.recorder.Record)
	m.engine = command.NewEngine(m.actionCatalogue, m.client, m.detector.Subscribe(), m.recorder.Record)
	m.closers = append(m.closers, runtime.LabeledCloser{Label: "actionEngine", Closer: func(context.Context) error {
		m.engine.Stop()
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.registry.Load(ctx); err != nil {
		return err
	}
	snapshot := m.registry.Snapshot()
	m.pool.Sync(snapshot.Connections)
	m.scheduler.Rebuild(snapshot.Connections)
	m.engine.Start()
	m.engine.Rebuild()
	return nil
}

func (m *Manager) loadMeta() {
	raw, err := m.store.Get(bridgeMeta)
	if err != nil && os.IsNotExist(err) {
		m.meta = &BridgeMeta{
			Secret: randutil.StringN(32),
			ObjectMeta: runtime.ObjectMeta{
				Name:    "epibridge",
				ID:      uuidutil.UUID(),
				Version: strconv.FormatUint(randutil.Uint64n(), 10),
				ModTime: time.Now(),
			},
		}
		klog.V(3).InfoS("Bridge information not exist, been created automatically", "bridgeId", m.meta.ID)
		if _, err := m.store.Create(bridgeMeta, m.meta); err != nil {
			klog.V(2).InfoS("Failed to create bridge information", "err", err)
		}
		return
	}
	m.meta = &BridgeMeta{}
	if err != nil {
		klog.V(2).InfoS("Failed to read bridge information", "err", err)
		return
	}
	if err = json.NewDecoder(bytes.NewReader(raw.([]byte))).Decode(m.meta); err != nil {
		klog.V(2).InfoS("Failed to unmarshal bridge information", "err", err)
	}
}

func (m *Manager) pollInterval() time.Duration {
	ms := m.GetSettings().PollIntervalMs
	if ms == 0 {
		ms = m.cfg.PollIntervalMs
	}
	if ms == 0 {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}

func (m *Manager) commandCatalogue() command.Catalogue {
	s := m.registry.Snapshot()
	if s == nil {
		return nil
	}
	return s
}

func (m *Manager) actionCatalogue() command.ActionCatalogue {
	s := m.registry.Snapshot()
	if s == nil {
		return nil
	}
	return s
}

func (m *Manager) GetBridgeMeta() *BridgeMeta {
	return m.meta
}

// RefreshCatalogue refetches the catalogue and reconciles sessions,
// runners, and action triggers against the new snapshot.
func (m *Manager) RefreshCatalogue(ctx context.Context) (*catalogue.Diff, error) {
	diff, err := m.registry.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := m.registry.Snapshot()
	m.pool.Sync(snapshot.Connections)
	m.scheduler.Rebuild(snapshot.Connections)
	m.engine.Rebuild()
	return diff, nil
}

func (m *Manager) WriteSignal(ctx context.Context, signalName string, value interface{}) (interface{}, error) {
	return m.executor.Write(ctx, signalName, value)
}

func (m *Manager) ExecuteAction(ctx context.Context, actionName string, params map[string]interface{}) (map[string]interface{}, error) {
	return m.engine.Execute(ctx, actionName, params)
}

// TestConnection probes an endpoint with a throwaway session and records
// the outcome.
func (m *Manager) TestConnection(ctx context.Context, host string, port int, unit uint8) error {
	if port == 0 {
		port = 502
	}
	err := m.pool.Test(ctx, host, port, unit)

	event := &runtime.Event{
		ID:        uuidutil.UUID(),
		Type:      runtime.EventConnectionTest,
		Status:    runtime.EventSuccess,
		Message:   host + ":" + strconv.Itoa(port),
		Timestamp: time.Now(),
	}
	if err != nil {
		event.Status = runtime.EventFailure
		event.Message = err.Error()
	}
	m.recorder.Record(event)
	return err
}

// ListConnections returns the folded view with live link state mixed in.
func (m *Manager) ListConnections(filter *runtime.ConnectionFilter) []*runtime.ConnectionMeta {
	snapshot := m.registry.Snapshot()
	if snapshot == nil {
		return nil
	}

	var predicates []func(*runtime.Connection) bool
	if filter != nil {
		for _, p := range runtime.ParseConnectionFilter(filter) {
			predicates = append(predicates, p)
		}
	}

	metas := make([]*runtime.ConnectionMeta, 0, len(snapshot.Connections))
next:
	for _, c := range snapshot.Connections {
		for _, p := range predicates {
			if !p(c) {
				continue next
			}
		}
		state := runtime.LinkDisconnected
		if session, ok := m.pool.Get(c.ID); ok {
			state = session.State()
		}
		metas = append(metas, &runtime.ConnectionMeta{
			ObjectMeta:  c.ObjectMeta,
			Host:        c.Host,
			Port:        c.Port,
			Unit:        c.Unit,
			Enabled:     c.Enabled,
			SignalCount: len(c.Signals),
			LinkState:   state.String(),
		})
	}
	return metas
}

func (m *Manager) GetConnection(id string) (*runtime.Connection, error) {
	snapshot := m.registry.Snapshot()
	if snapshot == nil {
		return nil, response.ErrCatalogueUnavailable
	}
	c, ok := snapshot.Connection(id)
	if !ok {
		return nil, response.ErrConnectionNotFound(id)
	}
	return c, nil
}

func (m *Manager) ListSignals() []*runtime.Signal {
	snapshot := m.registry.Snapshot()
	if snapshot == nil {
		return nil
	}
	var signals []*runtime.Signal
	for _, c := range snapshot.Connections {
		signals = append(signals, c.Signals...)
	}
	return signals
}

func (m *Manager) GetSignal(name string) (*runtime.Signal, error) {
	snapshot := m.registry.Snapshot()
	if snapshot == nil {
		return nil, response.ErrCatalogueUnavailable
	}
	s, ok := snapshot.Signal(name)
	if !ok {
		return nil, response.ErrSignalNotFound(name)
	}
	return s, nil
}

func (m *Manager) ListActions() []*runtime.Action {
	snapshot := m.registry.Snapshot()
	if snapshot == nil {
		return nil
	}
	return snapshot.ActionList()
}

func (m *Manager) RecentEvents(limit int) []*runtime.Event {
	return m.recorder.Recent(limit)
}

// Shutdown unwinds the component stack in reverse start order.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(m.closers); i > 0; i-- {
		lc := m.closers[i-1]
		klog.V(2).InfoS("Closing", "component", lc.Label)
		if err := lc.Closer(ctx); err != nil {
			klog.ErrorS(err, "Failed to close", "component", lc.Label)
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}
