package idgen

import "sync/atomic"

// Int64 returns values 1,2,3...
// Zero is never generated, and a value is never handed out twice by the same generator.
type Int64 struct {
	next atomic.Int64
}

func (u *Int64) Next() int64 {
	return u.next.Add(1)
}

// Peek returns the value that the next call to Next() will produce
func (u *Int64) Peek() int64 {
	return u.next.Load() + 1
}
