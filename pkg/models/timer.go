package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Action is a job control request sent by a technician's client.
type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
)

// Valid reports whether a is one of the four job control actions.
func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionPause, ActionResume, ActionStop:
		return true
	}
	return false
}

// ActionRequest is the body of a job control request. Elapsed is the
// client's locally computed total at the time of the action.
type ActionRequest struct {
	Elapsed int64  `json:"elapsed"`
	Reason  string `json:"reason,omitempty"`
}

// OptionalTime distinguishes an absent timestamp (Set false) from an
// explicit JSON null (Set true, Time nil).
type OptionalTime struct {
	Set  bool
	Time *time.Time
}

// ServerState is the authoritative job clock returned by the server after
// every control action. Any subset of fields may be present on the wire;
// nil pointers and an unset StartTime mean the field was absent.
type ServerState struct {
	TotalElapsed *int64
	StartTime    OptionalTime
	Status       *string
}

// NewServerState builds a fully populated state from a persisted job.
func NewServerState(job *Job) ServerState {
	total := job.TotalWorkSeconds
	status := job.Status
	st := ServerState{
		TotalElapsed: &total,
		Status:       &status,
		StartTime:    OptionalTime{Set: true},
	}
	if job.StartTime != nil {
		t := job.StartTime.UTC()
		st.StartTime.Time = &t
	}
	return st
}

func (s ServerState) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	if s.TotalElapsed != nil {
		out["total_elapsed"] = *s.TotalElapsed
	}
	if s.StartTime.Set {
		if s.StartTime.Time != nil {
			out["start_time"] = s.StartTime.Time.UTC().Format(time.RFC3339)
		} else {
			out["start_time"] = nil
		}
	}
	if s.Status != nil {
		out["status"] = *s.Status
	}
	return json.Marshal(out)
}

func (s *ServerState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ServerState{}

	if v, ok := raw["total_elapsed"]; ok && !isNull(v) {
		var total float64
		if err := json.Unmarshal(v, &total); err != nil {
			return fmt.Errorf("total_elapsed: %w", err)
		}
		n := int64(total)
		s.TotalElapsed = &n
	}

	if v, ok := raw["start_time"]; ok {
		s.StartTime.Set = true
		if !isNull(v) {
			var str string
			if err := json.Unmarshal(v, &str); err != nil {
				return fmt.Errorf("start_time: %w", err)
			}
			t, err := ParseTimestamp(str)
			if err != nil {
				return fmt.Errorf("start_time: %w", err)
			}
			s.StartTime.Time = &t
		}
	}

	if v, ok := raw["status"]; ok && !isNull(v) {
		var status string
		if err := json.Unmarshal(v, &status); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if status != "" {
			s.Status = &status
		}
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// PageState is the initial job view handed to a client. Values are strings
// because they mirror the hidden inputs of the job control page; clients
// parse them leniently.
type PageState struct {
	InitialElapsed string `json:"initialElapsed"`
	TargetSeconds  string `json:"targetSeconds"`
	JobStartTime   string `json:"jobStartTime"`
	Status         string `json:"status"`
}

// NewPageState renders a job's persisted clock into page form.
func NewPageState(job *Job) PageState {
	ps := PageState{
		InitialElapsed: strconv.FormatInt(job.TotalWorkSeconds, 10),
		TargetSeconds:  strconv.FormatInt(job.TargetSeconds, 10),
		JobStartTime:   "null",
		Status:         job.Status,
	}
	if job.StartTime != nil {
		ps.JobStartTime = job.StartTime.UTC().Format(time.RFC3339)
	}
	return ps
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp accepts RFC3339 and the zone-less ISO forms older servers
// emit. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
