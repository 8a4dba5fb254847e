// Package protocol defines the wire-level message shapes exchanged between
// the Controller, the Executor, and the Bridge, plus the length-prefixed
// frame codec used on the Executor channel.
package protocol

// Task is a Controller -> Executor command envelope.
type Task struct {
	Command  string         `json:"command"`
	Action   string         `json:"action"`
	Target   any            `json:"target,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BuildTask mirrors the original supervisor's utils.message_builder.build_task.
func BuildTask(command, action string, target any, metadata map[string]any) *Task {
	return &Task{
		Command:  command,
		Action:   action,
		Target:   target,
		Metadata: metadata,
	}
}

// TabID returns the tabId correlation key carried in metadata, or 0 if absent.
func (t *Task) TabID() int {
	return intFromMetadata(t.Metadata, "tabId")
}

// ResultStatus enumerates the Reply.Result values.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)

// Reply is an Executor -> Controller result envelope.
type Reply struct {
	Command  string         `json:"command"`
	Action   string         `json:"action"`
	Result   string         `json:"result"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Seq is assigned by the Framed Transport as frames are decoded off a
	// single connection; it is never sent over the wire. It backs the
	// Reply Dedup Cache (SPEC_FULL.md §3 DedupKey) and has no bearing on
	// handler dispatch order, which always follows arrival order.
	Seq uint64 `json:"-"`
	// ConnID identifies the accepted connection the reply arrived on.
	ConnID string `json:"-"`
}

// Succeeded reports whether the Executor completed the action.
func (r *Reply) Succeeded() bool {
	return r.Result == ResultSuccess
}

// TabID returns the tabId correlation key carried in metadata, or 0 if absent.
func (r *Reply) TabID() int {
	return intFromMetadata(r.Metadata, "tabId")
}

// Stdout returns metadata.stdout, action-specific: string, list, or object.
func (r *Reply) Stdout() any {
	if r.Metadata == nil {
		return nil
	}
	return r.Metadata["stdout"]
}

// Stderr returns metadata.stderr as a string, or "" if absent.
func (r *Reply) Stderr() string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata["stderr"].(string)
	return s
}

func intFromMetadata(md map[string]any, key string) int {
	if md == nil {
		return 0
	}
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
