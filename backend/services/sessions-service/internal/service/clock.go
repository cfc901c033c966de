package service

import (
	"time"

	"github.com/michalkurzeja/go-clock"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock through go-clock so a process-wide mock applies.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return clock.Now().UTC()
}
