package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/USA-RedDragon/logcapture-server/internal/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemCreateAndRemove(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	cfg := &config.Config{}
	cfg.Persistence.Archives.Driver = config.ArchivesDriverFilesystem
	cfg.Persistence.Archives.Directory = root
	store, err := NewArchiveStore(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	w, err := store.Create(context.Background(), "Lobby/2024-01-15-093000-abc.tgz")
	require.NoError(t, err)
	_, err = w.Write([]byte("archive"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	content, err := os.ReadFile(filepath.Join(root, "Lobby", "2024-01-15-093000-abc.tgz"))
	require.NoError(t, err)
	assert.Equal(t, "archive", string(content))

	require.NoError(t, store.Remove(context.Background(), "Lobby/2024-01-15-093000-abc.tgz"))
	_, err = os.Stat(filepath.Join(root, "Lobby", "2024-01-15-093000-abc.tgz"))
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystemStaysInRoot(t *testing.T) {
	t.Parallel()
	parent := t.TempDir()
	root := filepath.Join(parent, "archives")
	require.NoError(t, os.Mkdir(root, 0o755))

	store, err := newFilesystem(root)
	require.NoError(t, err)
	defer store.Close()

	w, err := store.Create(context.Background(), "../outside/escape.tgz")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(parent, "outside", "escape.tgz"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "outside", "escape.tgz"))
	assert.NoError(t, err)
}

type fakeS3 struct {
	puts    map[string][]byte
	deletes []string
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts[*params.Bucket+"/"+*params.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, *params.Bucket+"/"+*params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3UploadsOnClose(t *testing.T) {
	t.Parallel()
	client := &fakeS3{puts: map[string][]byte{}}
	store := newS3("captures", client)

	w, err := store.Create(context.Background(), "Lobby/a.tgz")
	require.NoError(t, err)
	_, err = io.Copy(w, bytes.NewReader([]byte("part one, part two")))
	require.NoError(t, err)
	assert.Empty(t, client.puts)

	require.NoError(t, w.Close())
	assert.Equal(t, []byte("part one, part two"), client.puts["captures/Lobby/a.tgz"])

	require.NoError(t, store.Remove(context.Background(), "Lobby/a.tgz"))
	assert.Equal(t, []string{"captures/Lobby/a.tgz"}, client.deletes)
}

func TestNewArchiveStoreUnknownDriver(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Persistence.Archives.Driver = "ftp"
	_, err := NewArchiveStore(context.Background(), cfg)
	assert.Error(t, err)
}
