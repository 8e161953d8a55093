// Package pipeline implements the pipeline document model: the tagged-variant
// Task type, the ordered Pipeline it belongs to, and the Collection loader
// that turns a set of YAML files into a name-addressable set of pipelines.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Kind discriminates the tagged-variant Task node.
type Kind int

const (
	KindTaskSet Kind = iota
	KindDispatch
	KindBranch
	KindChip
	KindCode
	KindAssert
	KindReturn
	KindDeclare
	KindComment
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindTaskSet:
		return "tasks"
	case KindDispatch:
		return "dispatch"
	case KindBranch:
		return "branch"
	case KindChip:
		return "chip"
	case KindCode:
		return "code"
	case KindAssert:
		return "assert"
	case KindReturn:
		return "return"
	case KindDeclare:
		return "declare"
	case KindComment:
		return "comment"
	case KindTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// KeyResultInto names where a result value is stored under a fixed key
// within a mapping, creating intermediate mappings as needed.
type KeyResultInto struct {
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
}

// Task is one node of a pipeline: a tagged variant plus the common optional
// attributes shared across most kinds. Exactly one kind-key
// determines Kind and the corresponding payload field is populated; every
// other kind-payload field is left at its zero value.
type Task struct {
	Kind Kind

	// Common attributes.
	Name             string
	CommentText      string
	When             string
	Log              string
	Loop             any
	RunAsync         bool
	StoreResultAs    string
	AppendResultInto string
	KeyResultInto    *KeyResultInto
	ReturnResult     bool
	Variables        map[string]any
	Params           map[string]any

	// Kind-specific payloads.
	TaskSet   []*Task
	Dispatch  string
	Branch    string
	Chip      string
	Code      string
	Assert    any // string or []any of strings
	Return    any
	Declare   map[string]any
	Terminate any
}

// commonFields mirrors Task's common attributes for mapstructure decoding
// out of the generic YAML mapping.
type commonFields struct {
	Name             string         `mapstructure:"name"`
	Comment          string         `mapstructure:"comment"`
	When             string         `mapstructure:"when"`
	Log              string         `mapstructure:"log"`
	Loop             any            `mapstructure:"loop"`
	RunAsync         bool           `mapstructure:"run_async"`
	StoreResultAs    string         `mapstructure:"store_result_as"`
	AppendResultInto string         `mapstructure:"append_result_into"`
	KeyResultInto    *KeyResultInto `mapstructure:"key_result_into"`
	ReturnResult     bool           `mapstructure:"return_result"`
	Variables        map[string]any `mapstructure:"variables"`
	Params           map[string]any `mapstructure:"params"`
}

// kindKeys are the mutually exclusive keys that determine Kind, excluding
// "comment" which doubles as a common documentation attribute: a node
// carrying only "comment" (and no other kind key) is a no-op CommentTask;
// a node carrying "comment" alongside a real kind key treats it as
// documentation text on that task.
var kindKeys = []string{
	"tasks", "dispatch", "branch", "chip", "code",
	"assert", "return", "declare", "terminate",
}

// ErrTaskKind is returned when a task node has zero or multiple kind-keys.
type ErrTaskKind struct {
	Present []string
}

func (e *ErrTaskKind) Error() string {
	if len(e.Present) == 0 {
		return "pipeline: task node has no kind key (one of: " + strings.Join(kindKeys, ", ") + ", comment)"
	}
	return fmt.Sprintf("pipeline: task node has multiple kind keys: %s", strings.Join(e.Present, ", "))
}

// UnmarshalYAML implements the tagged-variant discrimination for Task nodes.
func (t *Task) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("pipeline: decoding task node: %w", err)
	}
	return t.fromMap(raw)
}

func (t *Task) fromMap(raw map[string]any) error {
	var present []string
	for _, k := range kindKeys {
		if _, ok := raw[k]; ok {
			present = append(present, k)
		}
	}
	if len(present) > 1 {
		sort.Strings(present)
		return &ErrTaskKind{Present: present}
	}

	var cf commonFields
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cf,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("pipeline: building decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("pipeline: decoding common attributes: %w", err)
	}

	t.Name = cf.Name
	t.CommentText = cf.Comment
	t.When = cf.When
	t.Log = cf.Log
	t.Loop = cf.Loop
	t.RunAsync = cf.RunAsync
	t.StoreResultAs = cf.StoreResultAs
	t.AppendResultInto = cf.AppendResultInto
	t.KeyResultInto = cf.KeyResultInto
	t.ReturnResult = cf.ReturnResult
	t.Variables = cf.Variables
	t.Params = cf.Params

	if len(present) == 0 {
		if _, ok := raw["comment"]; ok {
			t.Kind = KindComment
			return nil
		}
		return &ErrTaskKind{}
	}

	switch present[0] {
	case "tasks":
		items, ok := raw["tasks"].([]any)
		if !ok {
			return fmt.Errorf("pipeline: %q: 'tasks' must be a sequence", t.taskLabel())
		}
		sub := make([]*Task, len(items))
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("pipeline: %q: tasks[%d] is not a mapping", t.taskLabel(), i)
			}
			sub[i] = &Task{}
			if err := sub[i].fromMap(m); err != nil {
				return fmt.Errorf("tasks[%d]: %w", i, err)
			}
		}
		t.Kind = KindTaskSet
		t.TaskSet = sub
	case "dispatch":
		s, ok := raw["dispatch"].(string)
		if !ok {
			return fmt.Errorf("pipeline: %q: 'dispatch' must be a string", t.taskLabel())
		}
		t.Kind = KindDispatch
		t.Dispatch = s
	case "branch":
		s, ok := raw["branch"].(string)
		if !ok {
			return fmt.Errorf("pipeline: %q: 'branch' must be a string", t.taskLabel())
		}
		t.Kind = KindBranch
		t.Branch = s
	case "chip":
		s, ok := raw["chip"].(string)
		if !ok {
			return fmt.Errorf("pipeline: %q: 'chip' must be a string", t.taskLabel())
		}
		t.Kind = KindChip
		t.Chip = s
	case "code":
		s, ok := raw["code"].(string)
		if !ok {
			return fmt.Errorf("pipeline: %q: 'code' must be a string", t.taskLabel())
		}
		t.Kind = KindCode
		t.Code = s
	case "assert":
		t.Kind = KindAssert
		t.Assert = raw["assert"]
	case "return":
		t.Kind = KindReturn
		t.Return = raw["return"]
	case "declare":
		m, ok := raw["declare"].(map[string]any)
		if !ok {
			return fmt.Errorf("pipeline: %q: 'declare' must be a mapping", t.taskLabel())
		}
		t.Kind = KindDeclare
		t.Declare = m
	case "terminate":
		t.Kind = KindTerminate
		t.Terminate = raw["terminate"]
	}

	if t.RunAsync {
		supported := t.Kind == KindTaskSet || t.Kind == KindDispatch || t.Kind == KindChip || t.Kind == KindCode
		if !supported {
			return fmt.Errorf("pipeline: %q: run_async is only valid on tasks/dispatch/chip/code", t.taskLabel())
		}
		if t.StoreResultAs == "" && t.AppendResultInto == "" && t.KeyResultInto == nil && !t.ReturnResult {
			return fmt.Errorf("pipeline: %q: run_async requires a result sink (store_result_as, append_result_into, key_result_into, or return_result)", t.taskLabel())
		}
	}

	return nil
}

// taskLabel returns a human name for a task for use in error messages,
// preferring the declared name and falling back to the kind.
func (t *Task) taskLabel() string {
	if t.Name != "" {
		return t.Name
	}
	return "<" + t.Kind.String() + ">"
}
