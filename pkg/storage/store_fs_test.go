package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/apis"
	"epibridge/pkg/runtime"
)

type storedDoc struct {
	runtime.ObjectMeta
	Payload string `json:"payload"`
}

func newTestClient(t *testing.T) *FsClient {
	t.Helper()
	fc := &FsClient{storePath: t.TempDir()}
	require.NoError(t, os.MkdirAll(filepath.Join(fc.storePath, Settings), 0711))
	return fc
}

func TestCreateAndGet(t *testing.T) {
	fc := newTestClient(t)
	doc := &storedDoc{ObjectMeta: runtime.ObjectMeta{ID: "a", Version: "7"}, Payload: "hello"}

	_, err := fc.Create(filepath.Join(Settings, "doc"), doc)
	require.NoError(t, err)

	raw, err := fc.Get(filepath.Join(Settings, "doc"))
	require.NoError(t, err)

	read := &storedDoc{}
	require.NoError(t, json.Unmarshal(raw.([]byte), read))
	assert.Equal(t, "hello", read.Payload)
	assert.Equal(t, "7", read.Version)
}

func TestCreateExisting(t *testing.T) {
	fc := newTestClient(t)
	key := filepath.Join(Settings, "doc")
	_, err := fc.Create(key, &storedDoc{})
	require.NoError(t, err)

	_, err = fc.Create(key, &storedDoc{})
	assert.Error(t, err)
}

func TestUpdateVersionMismatch(t *testing.T) {
	fc := newTestClient(t)
	key := filepath.Join(Settings, "doc")
	_, err := fc.Create(key, &storedDoc{ObjectMeta: runtime.ObjectMeta{Version: "7"}})
	require.NoError(t, err)

	_, err = fc.Update(key, "8", &storedDoc{Payload: "changed"})
	assert.ErrorIs(t, err, apis.ErrMismatch)
}

func TestUpdateAdvancesVersion(t *testing.T) {
	fc := newTestClient(t)
	key := filepath.Join(Settings, "doc")
	_, err := fc.Create(key, &storedDoc{ObjectMeta: runtime.ObjectMeta{Version: "7"}, Payload: "old"})
	require.NoError(t, err)

	next := &storedDoc{ObjectMeta: runtime.ObjectMeta{Version: "7"}, Payload: "new"}
	_, err = fc.Update(key, "7", next)
	require.NoError(t, err)

	raw, err := fc.Get(key)
	require.NoError(t, err)
	read := &storedDoc{}
	require.NoError(t, json.Unmarshal(raw.([]byte), read))
	assert.Equal(t, "new", read.Payload)
	assert.NotEqual(t, "", read.Version)
}

func TestUpdateMissing(t *testing.T) {
	fc := newTestClient(t)
	_, err := fc.Update(filepath.Join(Settings, "absent"), "1", &storedDoc{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeleteVersioned(t *testing.T) {
	fc := newTestClient(t)
	key := filepath.Join(Settings, "doc")
	_, err := fc.Create(key, &storedDoc{ObjectMeta: runtime.ObjectMeta{Version: "7"}})
	require.NoError(t, err)

	_, err = fc.Delete(key, "8")
	assert.ErrorIs(t, err, apis.ErrMismatch)

	_, err = fc.Delete(key, "7")
	require.NoError(t, err)

	_, err = fc.Get(key)
	assert.Error(t, err)
}
