// Package templatedata holds the key/value payloads sessions push into the
// engine: initial data, data updates and global props.
package templatedata

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
)

var (
	ErrReadOnly  = errors.New("templatedata: read-only data")
	ErrSelfMerge = errors.New("templatedata: cannot merge data into itself")
)

type TemplateData struct {
	mu        sync.RWMutex
	values    map[string]any
	processor string
	readOnly  bool

	consumed atomic.Bool
}

func New() *TemplateData {
	return &TemplateData{values: make(map[string]any)}
}

// FromMap copies m into a new TemplateData.
func FromMap(m map[string]any) *TemplateData {
	d := New()
	for k, v := range m {
		d.values[k] = cloneValue(v)
	}
	return d
}

func FromJSON(b []byte) (*TemplateData, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("templatedata: decode json: %w", err)
	}
	d := New()
	if m != nil {
		d.values = m
	}
	return d, nil
}

func (d *TemplateData) Put(key string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return ErrReadOnly
	}
	d.values[key] = value
	return nil
}

// Update shallow-merges diff into d.
func (d *TemplateData) Update(diff map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return ErrReadOnly
	}
	maps.Copy(d.values, diff)
	return nil
}

// UpdateWith shallow-merges another TemplateData into d.
func (d *TemplateData) UpdateWith(diff *TemplateData) error {
	if diff == nil {
		return nil
	}
	if diff == d {
		return ErrSelfMerge
	}
	snapshot := diff.ToMap()
	return d.Update(snapshot)
}

func (d *TemplateData) Remove(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return ErrReadOnly
	}
	delete(d.values, key)
	return nil
}

func (d *TemplateData) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[key]
	return v, ok
}

// MarkState names the data processor the engine applies to this payload.
func (d *TemplateData) MarkState(processor string) {
	d.mu.Lock()
	d.processor = processor
	d.mu.Unlock()
}

func (d *TemplateData) ProcessorName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.processor
}

func (d *TemplateData) MarkReadOnly() {
	d.mu.Lock()
	d.readOnly = true
	d.mu.Unlock()
}

func (d *TemplateData) ReadOnly() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readOnly
}

// MarkConsumed flags the data as handed to an engine.
func (d *TemplateData) MarkConsumed() { d.consumed.Store(true) }

func (d *TemplateData) Consumed() bool { return d.consumed.Load() }

func (d *TemplateData) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.values)
}

func (d *TemplateData) IsEmpty() bool { return d == nil || d.Len() == 0 }

// ToMap returns a deep copy of the payload.
func (d *TemplateData) ToMap() map[string]any {
	if d == nil {
		return map[string]any{}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneMap(d.values)
}

// DeepClone copies values, processor name and read-only flag. The clone is
// never marked consumed.
func (d *TemplateData) DeepClone() *TemplateData {
	if d == nil {
		return New()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &TemplateData{
		values:    cloneMap(d.values),
		processor: d.processor,
		readOnly:  d.readOnly,
	}
}

func (d *TemplateData) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.Marshal(d.values)
}

func (d *TemplateData) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if m == nil {
		m = make(map[string]any)
	}
	d.values = m
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case *TemplateData:
		return t.DeepClone()
	default:
		return v
	}
}
