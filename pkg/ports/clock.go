package ports

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// IDGenerator produces unique identifiers for sessions and messages.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to the IDGenerator interface.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }

// UUIDGenerator issues random (version 4) UUIDs.
var UUIDGenerator IDGenerator = IDFunc(uuid.NewString)
