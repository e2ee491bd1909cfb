package bridge

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/apis"
	"epibridge/pkg/runtime"
	v1 "epibridge/pkg/v1"
)

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]byte{}}
}

func (s *memStore) Get(key string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return raw, nil
}

func (s *memStore) List(key string) (interface{}, error) { return nil, nil }

func (s *memStore) Create(key string, obj interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[key]; ok {
		return nil, os.ErrExist
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	s.docs[key] = raw
	return obj, nil
}

func (s *memStore) Update(key, version string, obj interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	var old struct {
		runtime.ObjectMeta
	}
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, apis.ErrInternal
	}
	if version != old.Version {
		return nil, apis.ErrMismatch
	}
	ver, _ := strconv.ParseUint(version, 10, 64)
	accessor, err := runtime.Accessor(obj)
	if err != nil {
		return nil, apis.ErrInternal
	}
	accessor.SetVersion(strconv.FormatUint(ver+1, 10))
	next, err := json.Marshal(obj)
	if err != nil {
		return nil, apis.ErrInternal
	}
	s.docs[key] = next
	return obj, nil
}

func (s *memStore) Delete(key, version string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil, nil
}

func newSettingsManager(t *testing.T, cfg *Config) *Manager {
	t.Helper()
	m := NewManager(cfg, make(chan struct{}), WithStore(newMemStore()))
	m.loadSettings()
	require.NotNil(t, m.settings)
	return m
}

func TestLoadSettingsDefaults(t *testing.T) {
	m := newSettingsManager(t, &Config{})
	settings := m.GetSettings()
	assert.Equal(t, uint(1000), settings.PollIntervalMs)
	assert.Equal(t, "epibridge/signals", settings.TopicPrefix)
	assert.NotEmpty(t, settings.GetVersion())
}

func TestLoadSettingsHonorsConfiguredInterval(t *testing.T) {
	m := newSettingsManager(t, &Config{PollIntervalMs: 250})
	assert.Equal(t, uint(250), m.GetSettings().PollIntervalMs)
}

func TestUpdateSettingsVersionMismatch(t *testing.T) {
	m := newSettingsManager(t, &Config{})
	_, err := m.UpdateSettings(&v1.SettingsBody{PollIntervalMs: 500, TopicPrefix: "plant/signals"}, "stale")
	assert.ErrorIs(t, err, apis.ErrMismatch)

	// nothing changed
	assert.Equal(t, uint(1000), m.GetSettings().PollIntervalMs)
}

func TestUpdateSettings(t *testing.T) {
	m := newSettingsManager(t, &Config{})
	before := m.GetSettings()

	updated, err := m.UpdateSettings(&v1.SettingsBody{PollIntervalMs: 500, TopicPrefix: "plant/signals"}, before.GetVersion())
	require.NoError(t, err)
	assert.Equal(t, uint(500), updated.PollIntervalMs)
	assert.Equal(t, "plant/signals", updated.TopicPrefix)
	assert.NotEqual(t, before.GetVersion(), updated.GetVersion())

	assert.Equal(t, uint(500), m.GetSettings().PollIntervalMs)
}

func TestPatchSettingsMergesSingleField(t *testing.T) {
	m := newSettingsManager(t, &Config{})
	before := m.GetSettings()

	updated, err := m.PatchSettings([]byte(`{"topicPrefix":"plant/signals"}`), before.GetVersion())
	require.NoError(t, err)
	assert.Equal(t, "plant/signals", updated.TopicPrefix)
	assert.Equal(t, before.PollIntervalMs, updated.PollIntervalMs)
}

func TestPatchSettingsRejectsInvalid(t *testing.T) {
	m := newSettingsManager(t, &Config{})
	version := m.GetSettings().GetVersion()

	_, err := m.PatchSettings([]byte(`{"pollIntervalMs":0}`), version)
	assert.ErrorIs(t, err, apis.ErrInvalidValue)

	_, err = m.PatchSettings([]byte(`not json`), version)
	assert.ErrorIs(t, err, apis.ErrInvalidValue)
}
