package bridge

import (
	"bytes"
	"encoding/json"
	"os"
	"path"
	"strconv"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"k8s.io/klog/v2"

	"epibridge/pkg/apis"
	"epibridge/pkg/runtime"
	"epibridge/pkg/storage"
	"epibridge/pkg/utils/randutil"
	"epibridge/pkg/utils/uuidutil"
	v1 "epibridge/pkg/v1"
)

var settingsKey = path.Join(storage.Settings, "current")

const (
	defaultPollIntervalMs = 1000
	defaultTopicPrefix    = "epibridge/signals"
)

func (m *Manager) loadSettings() {
	raw, err := m.store.Get(settingsKey)
	if err != nil && os.IsNotExist(err) {
		m.settings = &Settings{
			ObjectMeta: runtime.ObjectMeta{
				Name:    "settings",
				ID:      uuidutil.UUID(),
				Version: strconv.FormatInt(randutil.Int63n()%runtime.ETagMaxInitialValue, 10),
				ModTime: time.Now(),
			},
			PollIntervalMs: defaultPollIntervalMs,
			TopicPrefix:    defaultTopicPrefix,
		}
		if m.cfg.PollIntervalMs > 0 {
			m.settings.PollIntervalMs = m.cfg.PollIntervalMs
		}
		if _, err := m.store.Create(settingsKey, m.settings); err != nil {
			klog.V(2).InfoS("Failed to create settings", "err", err)
		}
		return
	}
	m.settings = &Settings{}
	if err != nil {
		klog.V(2).InfoS("Failed to read settings", "err", err)
		return
	}
	if err = json.NewDecoder(bytes.NewReader(raw.([]byte))).Decode(m.settings); err != nil {
		klog.V(2).InfoS("Failed to unmarshal settings", "err", err)
	}
}

// GetSettings returns a copy; callers cannot mutate the live settings.
func (m *Manager) GetSettings() *Settings {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	copied := *m.settings
	return &copied
}

// UpdateSettings replaces the settings wholesale. The version must match
// the current eTag or the update is rejected with apis.ErrMismatch.
func (m *Manager) UpdateSettings(body *v1.SettingsBody, version string) (*Settings, error) {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()

	next := &Settings{
		ObjectMeta:     m.settings.ObjectMeta,
		PollIntervalMs: body.PollIntervalMs,
		TopicPrefix:    body.TopicPrefix,
	}
	return m.storeSettings(next, version)
}

// PatchSettings applies an RFC 7386 merge patch to the settings document.
func (m *Manager) PatchSettings(patch []byte, version string) (*Settings, error) {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()

	original, err := json.Marshal(struct {
		PollIntervalMs uint   `json:"pollIntervalMs"`
		TopicPrefix    string `json:"topicPrefix"`
	}{m.settings.PollIntervalMs, m.settings.TopicPrefix})
	if err != nil {
		return nil, apis.ErrInternal
	}
	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return nil, apis.ErrInvalidValue
	}
	next := &Settings{ObjectMeta: m.settings.ObjectMeta}
	if err := json.Unmarshal(merged, next); err != nil {
		return nil, apis.ErrInvalidValue
	}
	if next.PollIntervalMs == 0 || next.TopicPrefix == "" {
		return nil, apis.ErrInvalidValue
	}
	return m.storeSettings(next, version)
}

// storeSettings persists under the optimistic lock and applies side
// effects: the poll interval reschedules runners, the topic prefix
// reroutes the realtime channel. Caller holds settingsMu.
func (m *Manager) storeSettings(next *Settings, version string) (*Settings, error) {
	next.ModTime = time.Now()
	if _, err := m.store.Update(settingsKey, version, next); err != nil {
		return nil, err
	}
	prev := m.settings
	m.settings = next

	if next.PollIntervalMs != prev.PollIntervalMs && m.scheduler != nil {
		m.scheduler.SetDefaultInterval(time.Duration(next.PollIntervalMs) * time.Millisecond)
		if snapshot := m.registry.Snapshot(); snapshot != nil {
			m.scheduler.Rebuild(snapshot.Connections)
		}
	}
	if next.TopicPrefix != prev.TopicPrefix && m.realtime != nil {
		m.realtime.SetTopicPrefix(next.TopicPrefix)
	}

	copied := *next
	return &copied, nil
}
