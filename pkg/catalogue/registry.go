package catalogue

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"epibridge/pkg/address"
	"epibridge/pkg/runtime"
	"epibridge/pkg/storage"
	"epibridge/pkg/utils/differenceutil"
	"epibridge/pkg/utils/randutil"
)

var snapshotKey = path.Join(storage.Catalogue, "snapshot")

// Fetcher is the slice of Client the registry needs. Tests substitute a
// canned implementation.
type Fetcher interface {
	FetchConnections(ctx context.Context) ([]connectionDoc, error)
	FetchActions(ctx context.Context) ([]actionDoc, error)
}

// Snapshot is one immutable view of the catalogue. Readers take the whole
// snapshot and never see a half-applied refresh.
type Snapshot struct {
	Connections []*runtime.Connection
	Actions     []*runtime.Action
	FetchedAt   time.Time

	connectionsByID map[string]*runtime.Connection
	signalsByName   map[string]*runtime.Signal
	actionsByName   map[string]*runtime.Action
}

func (s *Snapshot) Connection(id string) (*runtime.Connection, bool) {
	c, ok := s.connectionsByID[id]
	return c, ok
}

func (s *Snapshot) Signal(name string) (*runtime.Signal, bool) {
	sig, ok := s.signalsByName[name]
	return sig, ok
}

func (s *Snapshot) Action(name string) (*runtime.Action, bool) {
	a, ok := s.actionsByName[name]
	return a, ok
}

// ActionList returns the actions in catalogue order.
func (s *Snapshot) ActionList() []*runtime.Action {
	return s.Actions
}

// Diff names the connections a refresh added, removed, and kept. The
// session pool syncs against it.
type Diff struct {
	Added   []string
	Removed []string
	Kept    []string
}

// Registry owns the current snapshot. Swaps are atomic; a failed fetch
// leaves the previous snapshot serving.
type Registry struct {
	fetcher Fetcher
	store   storage.Storage
	current atomic.Value
}

func NewRegistry(fetcher Fetcher, store storage.Storage) *Registry {
	return &Registry{fetcher: fetcher, store: store}
}

// Snapshot returns the current view, nil before the first successful Load.
func (r *Registry) Snapshot() *Snapshot {
	v := r.current.Load()
	if v == nil {
		return nil
	}
	return v.(*Snapshot)
}

// persistedCatalogue is the raw document form written to disk so a restart
// can serve the last known catalogue while the business system is down.
type persistedCatalogue struct {
	runtime.ObjectMeta
	Connections []connectionDoc `json:"connections"`
	Actions     []actionDoc     `json:"actions"`
}

// Load fetches the catalogue and publishes the first snapshot. When the
// business system is unreachable it falls back to the persisted copy.
func (r *Registry) Load(ctx context.Context) error {
	connDocs, actionDocs, err := r.fetch(ctx)
	if err != nil {
		klog.ErrorS(err, "Failed to fetch catalogue, trying persisted copy")
		connDocs, actionDocs, err = r.loadPersisted()
		if err != nil {
			return err
		}
	} else {
		r.persist(connDocs, actionDocs)
	}

	snapshot := buildSnapshot(connDocs, actionDocs, nil)
	r.current.Store(snapshot)
	klog.V(2).InfoS("Catalogue loaded", "connections", len(snapshot.Connections), "actions", len(snapshot.Actions))
	return nil
}

// Refresh refetches the catalogue and swaps in a new snapshot, carrying
// cached signal values over. On fetch failure the old snapshot stays.
func (r *Registry) Refresh(ctx context.Context) (*Diff, error) {
	connDocs, actionDocs, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	r.persist(connDocs, actionDocs)

	prev := r.Snapshot()
	snapshot := buildSnapshot(connDocs, actionDocs, prev)
	r.current.Store(snapshot)

	diff := &Diff{}
	var prevConnections []*runtime.Connection
	if prev != nil {
		prevConnections = prev.Connections
	}
	diff.Removed, diff.Kept, diff.Added = differenceutil.DifferenceAndIntersectionSameTypeObjects(
		prevConnections, snapshot.Connections,
		func(value interface{}) string { return value.(*runtime.Connection).GetID() })

	klog.V(2).InfoS("Catalogue refreshed",
		"added", len(diff.Added), "removed", len(diff.Removed), "kept", len(diff.Kept))
	return diff, nil
}

func (r *Registry) fetch(ctx context.Context) ([]connectionDoc, []actionDoc, error) {
	connDocs, err := r.fetcher.FetchConnections(ctx)
	if err != nil {
		return nil, nil, err
	}
	actionDocs, err := r.fetcher.FetchActions(ctx)
	if err != nil {
		return nil, nil, err
	}
	return connDocs, actionDocs, nil
}

func (r *Registry) persist(connDocs []connectionDoc, actionDocs []actionDoc) {
	if r.store == nil {
		return
	}
	obj := &persistedCatalogue{
		ObjectMeta: runtime.ObjectMeta{
			Name:    "catalogue",
			Version: strconv.FormatInt(randutil.Int63n()%runtime.ETagMaxInitialValue, 10),
			ModTime: time.Now(),
		},
		Connections: connDocs,
		Actions:     actionDocs,
	}
	if _, err := r.store.Delete(snapshotKey, ""); err != nil {
		klog.V(2).InfoS("Failed to drop stale catalogue copy", "err", err)
	}
	if _, err := r.store.Create(snapshotKey, obj); err != nil {
		klog.ErrorS(err, "Failed to persist catalogue copy")
	}
}

func (r *Registry) loadPersisted() ([]connectionDoc, []actionDoc, error) {
	if r.store == nil {
		return nil, nil, errors.New("no persisted catalogue available")
	}
	raw, err := r.store.Get(snapshotKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read persisted catalogue")
	}
	var obj persistedCatalogue
	if err := json.Unmarshal(raw.([]byte), &obj); err != nil {
		return nil, nil, errors.Wrap(err, "decode persisted catalogue")
	}
	klog.V(2).InfoS("Serving persisted catalogue", "fetchedAt", obj.ModTime)
	return obj.Connections, obj.Actions, nil
}

// Names flow into MQTT topics and URL paths; the catalogue is not trusted
// to keep them sane.
func validateCatalogueName(name string) error {
	if len(name) > 140 {
		return errors.New("must be no more than 140 characters")
	}
	if strings.ContainsAny(name, "/\\#+") {
		return errors.New("must not contain path or topic separators")
	}
	return nil
}

// buildSnapshot normalizes raw documents into runtime objects. Rows with
// an unknown kind or a duplicate name are skipped, never fatal; the rest
// of the catalogue still serves.
func buildSnapshot(connDocs []connectionDoc, actionDocs []actionDoc, prev *Snapshot) *Snapshot {
	snapshot := &Snapshot{
		FetchedAt:       time.Now(),
		connectionsByID: make(map[string]*runtime.Connection, len(connDocs)),
		signalsByName:   make(map[string]*runtime.Signal),
		actionsByName:   make(map[string]*runtime.Action, len(actionDocs)),
	}

	for _, doc := range connDocs {
		if errs := runtime.Validate(doc.Name, validateCatalogueName); len(errs) > 0 || doc.Host == "" {
			klog.InfoS("Skipped connection with invalid name or host", "name", doc.Name)
			continue
		}
		wordOrder, ok := runtime.StringToWordOrder[doc.WordOrder]
		if !ok {
			wordOrder = runtime.ABCD
		}
		conn := &runtime.Connection{
			ObjectMeta: runtime.ObjectMeta{
				Name:    doc.Name,
				ID:      doc.Name,
				Version: strconv.FormatInt(randutil.Int63n()%runtime.ETagMaxInitialValue, 10),
				ModTime: snapshot.FetchedAt,
			},
			Host:           doc.Host,
			Port:           int(doc.Port),
			Unit:           doc.Unit,
			Enabled:        doc.Enabled,
			WordOrder:      wordOrder,
			PollIntervalMs: doc.PollIntervalMs,
		}
		if conn.Port == 0 {
			conn.Port = 502
		}

		for _, sd := range doc.Signals {
			if errs := runtime.Validate(sd.Name, validateCatalogueName); len(errs) > 0 {
				klog.InfoS("Skipped signal with invalid name", "signal", sd.Name, "connection", doc.Name)
				continue
			}
			kind, ok := runtime.StringToSignalKind[sd.Kind]
			if !ok {
				klog.InfoS("Skipped signal with unknown kind", "signal", sd.Name, "kind", sd.Kind)
				continue
			}
			if _, dup := snapshot.signalsByName[sd.Name]; dup {
				klog.InfoS("Skipped signal with duplicate name", "signal", sd.Name, "connection", doc.Name)
				continue
			}
			kind = address.Classify(kind, sd.ModbusAddress)
			plcAddress, err := address.ToHierarchical(kind, sd.ModbusAddress)
			if err != nil {
				klog.InfoS("Skipped signal without address notation", "signal", sd.Name, "err", err)
				continue
			}
			sig := &runtime.Signal{
				Name:          sd.Name,
				Kind:          kind,
				LinearAddress: sd.ModbusAddress,
				PLCAddress:    plcAddress,
				Tolerance:     sd.Tolerance,
			}
			if prev != nil {
				if old, ok := prev.Signal(sig.Name); ok {
					sig.AdoptValue(old)
				}
			}
			conn.Signals = append(conn.Signals, sig)
			snapshot.signalsByName[sig.Name] = sig
		}

		conn.Index()
		snapshot.Connections = append(snapshot.Connections, conn)
		snapshot.connectionsByID[conn.ID] = conn
	}

	runtime.ByConnection(
		func(c1, c2 *runtime.Connection) bool { return c1.GetName() < c2.GetName() },
	).Sort(snapshot.Connections)

	for i := range actionDocs {
		doc := actionDocs[i]
		if doc.Name == "" {
			continue
		}
		trigger, ok := runtime.StringToTriggerType[doc.Trigger]
		if !ok {
			klog.InfoS("Skipped action with unknown trigger", "action", doc.Name, "trigger", doc.Trigger)
			continue
		}
		condition := runtime.ConditionAny
		if doc.Condition != "" {
			if condition, ok = runtime.StringToCondition[doc.Condition]; !ok {
				klog.InfoS("Skipped action with unknown condition", "action", doc.Name, "condition", doc.Condition)
				continue
			}
		}
		action := &runtime.Action{
			Name:       doc.Name,
			Enabled:    doc.Enabled,
			SignalName: doc.SignalName,
			ScriptName: doc.ScriptName,
			Trigger:    trigger,
			IntervalMs: doc.IntervalMs,
			Condition:  condition,
			Value:      doc.Value,
		}
		for _, p := range doc.Parameters {
			param := &runtime.Parameter{}
			if v, ok := p["name"].(string); ok {
				param.Name = v
			}
			if v, ok := p["type"].(string); ok {
				param.Type = v
			}
			param.Value = p["value"]
			action.Parameters = append(action.Parameters, param)
		}
		snapshot.Actions = append(snapshot.Actions, action)
		snapshot.actionsByName[action.Name] = action
	}

	return snapshot
}
