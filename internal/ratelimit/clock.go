package ratelimit

import "time"

// Clock abstracts time so window arithmetic can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// RealClock returns a Clock backed by time.Now.
func RealClock() Clock {
	return realClock{}
}
