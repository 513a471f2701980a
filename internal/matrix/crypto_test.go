// ABOUTME: Tests for crypto store helpers of the Matrix bridge
// ABOUTME: Covers path slugs, key derivation and stale device detection

package matrix

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "responder_example.org", slugify("@responder:example.org"))
	assert.Equal(t, "a-b_c", slugify("@a-b_c"))
	assert.Equal(t, "weird", slugify("@we/ir d"))
}

func TestStoreKey(t *testing.T) {
	a := storeKey("@a:example.org")
	assert.Len(t, a, 32)
	assert.Equal(t, a, storeKey("@a:example.org"))
	assert.NotEqual(t, a, storeKey("@b:example.org"))
}

func TestStoredDeviceDiffers(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "crypto.db")

	differs, err := storedDeviceDiffers(dbPath, "DEVICE")
	require.NoError(t, err)
	assert.False(t, differs, "missing store never differs")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE crypto_account (device_id TEXT)")
	require.NoError(t, err)

	differs, err = storedDeviceDiffers(dbPath, "DEVICE")
	require.NoError(t, err)
	assert.False(t, differs, "store without account never differs")

	_, err = db.Exec("INSERT INTO crypto_account (device_id) VALUES ('OLD')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	differs, err = storedDeviceDiffers(dbPath, "DEVICE")
	require.NoError(t, err)
	assert.True(t, differs)

	differs, err = storedDeviceDiffers(dbPath, "OLD")
	require.NoError(t, err)
	assert.False(t, differs)

	require.NoError(t, removeDatabase(dbPath))
	require.NoError(t, removeDatabase(dbPath), "removing twice is fine")
}
