package cache

import "sync/atomic"

// Versioner 维护全局缓存版本号。
// 版本号参与缓存键派生，Bump 一次即让全部旧键不再被命中，
// 旧条目依赖 TTL 自然过期。
type Versioner struct {
	version atomic.Int64
}

// NewVersioner 创建版本管理器，初始版本为 1
func NewVersioner() *Versioner {
	v := &Versioner{}
	v.version.Store(1)
	return v
}

// Current 返回当前版本号
func (v *Versioner) Current() int64 {
	return v.version.Load()
}

// Bump 原子递增版本号并返回新版本
func (v *Versioner) Bump() int64 {
	return v.version.Add(1)
}
