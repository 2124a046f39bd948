package bookingapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wellness/booking/internal/domain/booking"
)

// wireInterval accepts both the start/end and start_at/end_at spellings.
type wireInterval struct {
	StartA       json.RawMessage `json:"start"`
	EndA         json.RawMessage `json:"end"`
	StartB       json.RawMessage `json:"start_at"`
	EndB         json.RawMessage `json:"end_at"`
	SpecialistID string          `json:"specialist_id"`
}

func (w wireInterval) toInterval() (booking.Interval, error) {
	start, end := w.StartA, w.EndA
	if len(start) == 0 {
		start, end = w.StartB, w.EndB
	}
	var iv booking.Interval
	if err := json.Unmarshal(start, &iv.Start); err != nil {
		return booking.Interval{}, fmt.Errorf("interval start: %w", err)
	}
	if err := json.Unmarshal(end, &iv.End); err != nil {
		return booking.Interval{}, fmt.Errorf("interval end: %w", err)
	}
	if !iv.End.After(iv.Start) {
		return booking.Interval{}, fmt.Errorf("interval ends at %s before it starts at %s", iv.End, iv.Start)
	}
	iv.SpecialistID = w.SpecialistID
	return iv, nil
}

// decodeIntervals normalizes a busy-interval payload. The authority may
// answer with a flat list or with an object keyed by specialist ID. Flat
// entries without an ID belong to pinned when it is set.
func decodeIntervals(raw json.RawMessage, pinned string) ([]booking.Interval, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []booking.Interval{}, nil
	}

	var out []booking.Interval
	switch raw[0] {
	case '[':
		var list []wireInterval
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode busy list: %w", err)
		}
		for _, w := range list {
			iv, err := w.toInterval()
			if err != nil {
				return nil, err
			}
			if iv.SpecialistID == "" {
				iv.SpecialistID = pinned
			}
			out = append(out, iv)
		}
	case '{':
		var grouped map[string][]wireInterval
		if err := json.Unmarshal(raw, &grouped); err != nil {
			return nil, fmt.Errorf("decode busy map: %w", err)
		}
		ids := make([]string, 0, len(grouped))
		for id := range grouped {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			for _, w := range grouped[id] {
				iv, err := w.toInterval()
				if err != nil {
					return nil, err
				}
				iv.SpecialistID = id
				out = append(out, iv)
			}
		}
	default:
		return nil, fmt.Errorf("unexpected busy payload starting with %q", raw[0])
	}
	if out == nil {
		out = []booking.Interval{}
	}
	return out, nil
}
