package engine

import (
	"encoding/json"
	"fmt"
)

// ThreadStrategy assigns assembly, layout and UI mutation work to threads.
type ThreadStrategy int

const (
	AllOnUI ThreadStrategy = iota
	MostOnTASM
	PartOnLayout
	MultiThread
)

var threadStrategyNames = map[ThreadStrategy]string{
	AllOnUI:      "all_on_ui",
	MostOnTASM:   "most_on_tasm",
	PartOnLayout: "part_on_layout",
	MultiThread:  "multi_thread",
}

var threadStrategyFromName = map[string]ThreadStrategy{
	"all_on_ui":      AllOnUI,
	"most_on_tasm":   MostOnTASM,
	"part_on_layout": PartOnLayout,
	"multi_thread":   MultiThread,
}

func (s ThreadStrategy) String() string {
	if n, ok := threadStrategyNames[s]; ok {
		return n
	}
	return "unknown"
}

// IsAsync reports whether template assembly runs off the UI thread.
func (s ThreadStrategy) IsAsync() bool {
	return s == MultiThread || s == MostOnTASM
}

// LayoutOffUI reports whether layout runs on a dedicated thread.
func (s ThreadStrategy) LayoutOffUI() bool {
	return s == PartOnLayout || s == MultiThread
}

func ParseThreadStrategy(name string) (ThreadStrategy, error) {
	s, ok := threadStrategyFromName[name]
	if !ok {
		return AllOnUI, fmt.Errorf("unknown thread strategy %q", name)
	}
	return s, nil
}

func (s ThreadStrategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ThreadStrategy) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, err := ParseThreadStrategy(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
