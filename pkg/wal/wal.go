package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// FileModePrivate rw------- (只有擁有者可讀寫)，帳務資料預設使用
const FileModePrivate fs.FileMode = 0600

var (
	// ErrClosed WAL 已關閉
	ErrClosed = errors.New("wal: closed")
	// ErrBroken 寫入失敗且無法回復檔案尾端，之後的寫入一律拒絕
	ErrBroken = errors.New("wal: broken")
)

// file WAL 用到的 *os.File 操作
type file interface {
	io.ReadWriteSeeker
	Sync() error
	Truncate(size int64) error
	Stat() (fs.FileInfo, error)
	Close() error
}

// WAL 以 JSON Lines 格式追加寫入的 Write-Ahead Log
//
// 結構:
//
//	size: 已確認寫入的檔案長度，寫入失敗時截回這裡
//	broken: 截斷也失敗時的原因
type WAL struct {
	file   file
	mu     sync.Mutex
	size   int64
	broken error
	closed bool
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	w, err := newWAL(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	return w, nil
}

func newWAL(f file) (*WAL, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &WAL{file: f, size: info.Size()}, nil
}

// Write 寫入一筆資料並刷入硬碟
// 回傳 nil 代表該筆資料已持久化；回傳錯誤時檔案內容不含這筆資料
func (w *WAL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}

	// 一次 write 寫完整行，避免與其他紀錄交錯
	_, err = w.file.Write(line)
	if err == nil {
		err = w.file.Sync()
	}
	if err != nil {
		w.rollback()
		return err
	}
	w.size += int64(len(line))
	return nil
}

// rollback 截掉失敗寫入留下的位元組 (完整的行或殘缺片段)
// 未回報成功的紀錄不能在重啟時被重放
func (w *WAL) rollback() {
	if err := w.file.Truncate(w.size); err != nil {
		w.broken = err
	}
}

// Sync 強制刷入硬碟
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.file.Sync()
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// ReadAll 從頭讀取所有資料
// callback 逐筆接收原始 JSON，避免一次將所有資料載入記憶體
// 最後一行若不完整 (寫到一半當機) 會被略過並截斷，其餘格式錯誤則回傳錯誤
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)
	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(line)) > 0 {
				// 不完整的尾端紀錄，從未回報成功，直接截掉
				if err := w.file.Truncate(offset); err != nil {
					return err
				}
			}
			w.size = offset
			return nil
		}
		if err != nil {
			return err
		}
		start := offset
		offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return fmt.Errorf("wal: corrupt record at offset %d", start)
		}
		if err := callback(line); err != nil {
			return err
		}
	}
}
