package conciliation

import "time"

// Clock supplies run and edit timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// fixedClock always returns the same instant.
type fixedClock time.Time

func (c fixedClock) Now() time.Time {
	return time.Time(c)
}
