package llm

import "sync"

// KeyPool API key 轮换池。游标在整个进程生命周期内单调前进，不会中途重置
type KeyPool struct {
	mu        sync.Mutex
	keys      []string
	cursor    int
	rotations int
}

func NewKeyPool(keys []string) *KeyPool {
	pool := &KeyPool{}
	for _, key := range keys {
		if key != "" {
			pool.keys = append(pool.keys, key)
		}
	}
	return pool
}

// Len key 数量
func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current 当前使用的 key
func (p *KeyPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[p.cursor%len(p.keys)]
}

// Rotate 切换到下一个 key 并返回它
func (p *KeyPool) Rotate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return ""
	}
	p.cursor++
	p.rotations++
	return p.keys[p.cursor%len(p.keys)]
}

// Rotations 累计轮换次数
func (p *KeyPool) Rotations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotations
}

// Index 当前 key 的序号（从 0 开始），用于日志，避免打印 key 本身
func (p *KeyPool) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return 0
	}
	return p.cursor % len(p.keys)
}
