package domain

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
	idLastMs  uint64
)

// NewStatementID 產生行程內嚴格遞增的 ULID
// 時鐘倒退時沿用上一個毫秒，讓 id 排序與提交順序一致
func NewStatementID() string {
	idMu.Lock()
	defer idMu.Unlock()

	ms := ulid.Now()
	if ms < idLastMs {
		ms = idLastMs
	}
	id, err := ulid.New(ms, idEntropy)
	if err != nil {
		// 同一毫秒內 entropy 溢位
		ms++
		id = ulid.MustNew(ms, idEntropy)
	}
	idLastMs = ms
	return id.String()
}
