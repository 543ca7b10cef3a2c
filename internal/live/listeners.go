package live

import (
	"sync"
	"sync/atomic"
)

type listener[T any] struct {
	fn func(T)
}

// listeners is a copy-on-write list of callbacks. Registration never
// blocks notification.
type listeners[T any] struct {
	list atomic.Pointer[[]*listener[T]]
}

// add registers fn and returns a func that removes it.
func (l *listeners[T]) add(fn func(T)) func() {
	entry := &listener[T]{fn: fn}
	for {
		old := l.list.Load()
		var next []*listener[T]
		if old != nil {
			next = make([]*listener[T], 0, len(*old)+1)
			next = append(next, *old...)
		}
		next = append(next, entry)
		if l.list.CompareAndSwap(old, &next) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(entry) })
	}
}

func (l *listeners[T]) remove(entry *listener[T]) {
	for {
		old := l.list.Load()
		if old == nil {
			return
		}
		next := make([]*listener[T], 0, len(*old))
		for _, e := range *old {
			if e != entry {
				next = append(next, e)
			}
		}
		if l.list.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (l *listeners[T]) len() int {
	if p := l.list.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// notify calls every listener with v. A panicking listener is reported to
// onPanic and the rest still run.
func (l *listeners[T]) notify(v T, onPanic func(any)) {
	p := l.list.Load()
	if p == nil {
		return
	}
	for _, e := range *p {
		call(e.fn, v, onPanic)
	}
}

func call[T any](fn func(T), v T, onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(r)
		}
	}()
	fn(v)
}
