// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"encoding/json"
	"time"
)

// timeLayout is the emission format for instants: RFC 3339 with fixed
// millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a UTC instant that round-trips as RFC 3339 with millisecond
// precision on emission and accepts any RFC 3339 form on input.
type Timestamp struct {
	time.Time
}

// Now returns the current instant in UTC.
func Now() Timestamp {
	return Timestamp{time.Now().UTC()}
}

// MaxTime and MinTime are the sentinel instants used for "not yet observed"
// submission times and for the open-ended window of contest 0.
var (
	MaxTime = Timestamp{time.Date(9999, 12, 31, 23, 59, 59, 999000000, time.UTC)}
	MinTime = Timestamp{time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)}
)

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timeLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC()
	return nil
}

// ParseTimestamp parses an RFC 3339 instant from a query parameter.
func ParseTimestamp(s string) (Timestamp, error) {
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{parsed.UTC()}, nil
}
