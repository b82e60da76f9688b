package indexer

import "sync/atomic"

// IndexLock admits one scan at a time without blocking the caller that loses
type IndexLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free
func (l *IndexLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the run that acquired it releases it.
func (l *IndexLock) Release() {
	l.held.Store(false)
}

// Held reports whether a scan holds the lock
func (l *IndexLock) Held() bool {
	return l.held.Load()
}
