package wal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Seq int `json:"seq"`
}

func readSeqs(t *testing.T, w *WAL) []int {
	t.Helper()
	var seqs []int
	err := w.ReadAll(func(raw []byte) error {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	return seqs
}

func TestWAL_WriteAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, w.Write(record{Seq: i}))
	}
	require.NoError(t, w.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []int{1, 2, 3}, readSeqs(t, reopened))
}

func TestWAL_TornTailIsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"seq\":1}\n{\"seq\":2}\n{\"seq\":"), FileModePrivate))

	w, err := NewWAL(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, []int{1, 2}, readSeqs(t, w))

	// 截斷後可以繼續追加
	require.NoError(t, w.Write(record{Seq: 3}))
	assert.Equal(t, []int{1, 2, 3}, readSeqs(t, w))
}

func TestWAL_CorruptMiddleRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"seq\":1}\nnot-json\n{\"seq\":3}\n"), FileModePrivate))

	w, err := NewWAL(path)
	require.NoError(t, err)
	defer w.Close()

	err = w.ReadAll(func([]byte) error { return nil })
	assert.Error(t, err)
}

func TestWAL_ConcurrentWrites(t *testing.T) {
	w, err := NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			assert.NoError(t, w.Write(record{Seq: seq}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, readSeqs(t, w), 50)
}

func TestWAL_Closed(t *testing.T) {
	w, err := NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Write(record{Seq: 1}), ErrClosed)
	assert.NoError(t, w.Close())
}

// faultyFile 在 *os.File 外層注入寫入與 sync 錯誤
type faultyFile struct {
	*os.File
	shortWrite  bool
	writeErr    error
	syncErr     error
	truncateErr error
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.writeErr == nil {
		return f.File.Write(p)
	}
	if f.shortWrite {
		n, _ := f.File.Write(p[:len(p)/2])
		return n, f.writeErr
	}
	return 0, f.writeErr
}

func (f *faultyFile) Sync() error {
	if f.syncErr != nil {
		return f.syncErr
	}
	return f.File.Sync()
}

func (f *faultyFile) Truncate(size int64) error {
	if f.truncateErr != nil {
		return f.truncateErr
	}
	return f.File.Truncate(size)
}

func openFaulty(t *testing.T) (*WAL, *faultyFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wal.log")
	osFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	require.NoError(t, err)
	f := &faultyFile{File: osFile}
	w, err := newWAL(f)
	require.NoError(t, err)
	return w, f, path
}

func TestWAL_FailedSyncLeavesNoRecord(t *testing.T) {
	w, f, path := openFaulty(t)
	require.NoError(t, w.Write(record{Seq: 1}))

	f.syncErr = errors.New("sync failed")
	require.Error(t, w.Write(record{Seq: 2}))
	f.syncErr = nil

	require.NoError(t, w.Write(record{Seq: 3}))
	require.NoError(t, w.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []int{1, 3}, readSeqs(t, reopened))
}

func TestWAL_ShortWriteIsRolledBack(t *testing.T) {
	w, f, path := openFaulty(t)
	require.NoError(t, w.Write(record{Seq: 1}))

	f.writeErr = errors.New("no space left on device")
	f.shortWrite = true
	require.Error(t, w.Write(record{Seq: 2}))
	f.writeErr = nil

	require.NoError(t, w.Write(record{Seq: 3}))
	require.NoError(t, w.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []int{1, 3}, readSeqs(t, reopened))
}

func TestWAL_BrokenAfterFailedRollback(t *testing.T) {
	w, f, _ := openFaulty(t)
	defer w.Close()

	f.syncErr = errors.New("sync failed")
	f.truncateErr = errors.New("truncate failed")
	require.Error(t, w.Write(record{Seq: 1}))

	f.syncErr = nil
	f.truncateErr = nil
	assert.ErrorIs(t, w.Write(record{Seq: 2}), ErrBroken)
}
