package remediation

import "sync"

// keyedMutex 按工作流 ID 串行化的锁
// 同一 ID 的决策按到达顺序排队，不同 ID 互不阻塞；
// 条目带引用计数，空闲后即回收，避免 map 无界增长
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		entries: make(map[string]*lockEntry),
	}
}

// Lock 锁定指定 ID，返回解锁函数
func (k *keyedMutex) Lock(id string) func() {
	k.mu.Lock()
	entry, ok := k.entries[id]
	if !ok {
		entry = &lockEntry{}
		k.entries[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}
