package model

import (
	"fmt"
	"strconv"
	"time"
)

// SimTime is a simulation clock reading in seconds since the Unix epoch.
type SimTime int64

// ParseSimTime accepts either integer seconds or an RFC 3339 timestamp.
func ParseSimTime(s string) (SimTime, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return SimTime(n), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("parse sim time %q: %w", s, err)
	}
	return SimTime(t.Unix()), nil
}

// Time converts to a UTC time.Time.
func (t SimTime) Time() time.Time { return time.Unix(int64(t), 0).UTC() }

// Add returns t advanced by seconds.
func (t SimTime) Add(seconds int64) SimTime { return t + SimTime(seconds) }

func (t SimTime) String() string { return t.Time().Format(time.RFC3339) }
