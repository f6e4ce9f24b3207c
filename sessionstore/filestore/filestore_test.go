package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algolab-go/broker-gateway/sessionstore"
)

func TestLoadMissingFileReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(filepath.Join(dir, "session.json"), zerolog.Nop())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "owner-1")
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(filepath.Join(dir, "session.json"), zerolog.Nop())
	require.NoError(t, err)

	now := time.Now().Truncate(time.Second)
	record := sessionstore.Record{
		Owner:     "owner-1",
		Token:     "T1",
		Hash:      "H1",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Active:    true,
	}
	require.NoError(t, fs.Save(context.Background(), record))

	loaded, err := fs.Load(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "T1", loaded.Token)
	assert.Equal(t, "H1", loaded.Hash)
}

func TestLoadRejectsMismatchedOwner(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(filepath.Join(dir, "session.json"), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, fs.Save(context.Background(), sessionstore.Record{Owner: "owner-1", Active: true}))

	_, err = fs.Load(context.Background(), "owner-2")
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestDeactivateMarksRecordInactive(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(filepath.Join(dir, "session.json"), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, fs.Save(context.Background(), sessionstore.Record{Owner: "owner-1", Active: true}))
	require.NoError(t, fs.Deactivate(context.Background(), "owner-1", "logout"))

	_, err = fs.Load(context.Background(), "owner-1")
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestDeactivateOnMissingSessionIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(filepath.Join(dir, "session.json"), zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, fs.Deactivate(context.Background(), "owner-1", "logout"))
}

func TestLoadTreatsMalformedFileAsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	fs, err := New(path, zerolog.Nop())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "owner-1")
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}
