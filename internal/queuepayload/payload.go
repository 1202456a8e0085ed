// Package queuepayload defines the wire shape pushed onto the broker list,
// shared by intake, the worker pool, and the workflow registry so none of
// them need to import each other.
package queuepayload

import (
	"bytes"
	"encoding/json"
)

// Payload is the JSON object enqueued on the broker list, per spec.md §3's
// QueuePayload and §6's wire shape.
type Payload struct {
	ID         string   `json:"id"`
	User       string   `json:"user"`
	Content    string   `json:"content"`
	Intent     string   `json:"intent"`
	Workflow   string   `json:"workflow"`
	CreatedAt  float64  `json:"created_at"`
	TaskType   string   `json:"task_type,omitempty"`
	ScriptArgs []string `json:"script_args,omitempty"`
}

// Marshal encodes p without escaping non-ASCII characters, matching the
// original service's JSON encoding of Chinese content.
func Marshal(p Payload) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
