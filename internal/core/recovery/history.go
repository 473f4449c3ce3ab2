package recovery

import (
	"encoding/json"
	"time"
)

// HistoryCapacity is the number of errors remembered per session.
const HistoryCapacity = 5

// HistoryEntry is one recorded failure.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Phase     int       `json:"phase"`
	Step      string    `json:"step"`
	Retryable bool      `json:"retryable"`
}

// ErrorHistory is a fixed-capacity ring of the most recent failures.
// The zero value is an empty history. It serializes as a JSON array, oldest first.
type ErrorHistory struct {
	buf   [HistoryCapacity]HistoryEntry
	start int
	n     int
}

// Push records e, evicting the oldest entry when full.
func (h *ErrorHistory) Push(e HistoryEntry) {
	if h.n < HistoryCapacity {
		h.buf[(h.start+h.n)%HistoryCapacity] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % HistoryCapacity
}

// Len returns the number of stored entries.
func (h *ErrorHistory) Len() int {
	return h.n
}

// Entries returns the stored entries, oldest first.
func (h *ErrorHistory) Entries() []HistoryEntry {
	out := make([]HistoryEntry, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%HistoryCapacity]
	}
	return out
}

// CountType returns how many stored entries have type typ.
func (h *ErrorHistory) CountType(typ ErrorType) int {
	count := 0
	for i := 0; i < h.n; i++ {
		if h.buf[(h.start+i)%HistoryCapacity].Type == typ {
			count++
		}
	}
	return count
}

// MarshalJSON encodes the history as an array.
func (h ErrorHistory) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Entries())
}

// UnmarshalJSON decodes an array, keeping only the newest HistoryCapacity entries.
func (h *ErrorHistory) UnmarshalJSON(data []byte) error {
	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*h = ErrorHistory{}
	for _, e := range entries {
		h.Push(e)
	}
	return nil
}

// ParseHistory decodes a stored history column. Empty input yields an empty history.
func ParseHistory(raw string) (ErrorHistory, error) {
	var h ErrorHistory
	if raw == "" || raw == "null" {
		return h, nil
	}
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return ErrorHistory{}, err
	}
	return h, nil
}
