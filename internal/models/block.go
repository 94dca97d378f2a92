package models

import (
	"encoding/json"
	"iter"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TaskState is the workflow state carried by a task marker.
type TaskState string

// Task states. NOW and LATER markers map onto DOING and TODO.
const (
	TaskNone      TaskState = ""
	TaskTodo      TaskState = "TODO"
	TaskDoing     TaskState = "DOING"
	TaskDone      TaskState = "DONE"
	TaskCancelled TaskState = "CANCELLED"
)

// Block is a node in a page's content tree.
type Block struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Depth   int    `json:"depth"`
	// Line is the zero-based source line the block starts on.
	Line int `json:"line"`

	// Parent is the arena index of the parent block, -1 for roots.
	Parent   int   `json:"-"`
	Children []int `json:"-"`

	Properties Properties  `json:"properties"`
	Task       TaskState   `json:"task,omitempty"`
	Marker     string      `json:"marker,omitempty"`
	Priority   string      `json:"priority,omitempty"`
	Languages  []string    `json:"languages,omitempty"`
	Refs       []Reference `json:"refs"`
}

// Text returns the content with the task marker and priority removed.
func (b *Block) Text() string {
	s := b.Content
	if b.Marker != "" {
		s = strings.TrimPrefix(s, b.Marker)
		s = strings.TrimLeft(s, " \t")
	}
	if b.Priority != "" {
		s = strings.TrimPrefix(s, "[#"+b.Priority+"]")
		s = strings.TrimLeft(s, " \t")
	}
	return s
}

// Properties is an insertion-ordered set of block properties. Setting an
// existing key keeps its position and replaces the value.
type Properties struct {
	m *orderedmap.OrderedMap[string, string]
}

// Set assigns key to value.
func (p *Properties) Set(key, value string) {
	if p.m == nil {
		p.m = orderedmap.New[string, string]()
	}
	p.m.Set(key, value)
}

// Get returns the value stored under key.
func (p Properties) Get(key string) (string, bool) {
	if p.m == nil {
		return "", false
	}
	return p.m.Get(key)
}

// Len returns the number of properties.
func (p Properties) Len() int {
	if p.m == nil {
		return 0
	}
	return p.m.Len()
}

// All yields key/value pairs in insertion order.
func (p Properties) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if p.m == nil {
			return
		}
		for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Keys returns property names in insertion order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, p.Len())
	for k := range p.All() {
		keys = append(keys, k)
	}
	return keys
}

// MarshalJSON encodes the properties as an object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.m)
}

// UnmarshalJSON decodes an object, keeping the key order of the input.
func (p *Properties) UnmarshalJSON(data []byte) error {
	p.m = orderedmap.New[string, string]()
	return json.Unmarshal(data, p.m)
}
