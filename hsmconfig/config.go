// Package hsmconfig loads a declarative machine definition from YAML,
// the generic front end spec.md's "Design Notes" call out as an
// alternative to hand-written Register* calls (the spec's code
// generator concern, minus any SCXML-specific parsing). Guards and
// callbacks can't live in YAML, so the definition references them by
// name and a Registry supplies the actual Go functions at Apply time.
package hsmconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/latticehsm/hsm"
)

// Definition is the root of a YAML machine definition.
type Definition struct {
	InitialState string            `yaml:"initial_state"`
	States       []StateDef        `yaml:"states"`
	Substates    []SubstateDef     `yaml:"substates"`
	EntryPoints  []EntryPointDef   `yaml:"entry_points"`
	Transitions  []TransitionDef   `yaml:"transitions"`
	History      []HistoryDef      `yaml:"history"`
	Timers       []TimerDef        `yaml:"timers"`
	Actions      []StateActionDef  `yaml:"actions"`
}

// StateDef declares a state, optionally final.
type StateDef struct {
	Name          string `yaml:"name"`
	Final         bool   `yaml:"final"`
	ExitEvent     string `yaml:"exit_event"`
	OnEntering    string `yaml:"on_entering"`
	OnState       string `yaml:"on_state"`
	OnExiting     string `yaml:"on_exiting"`
}

// SubstateDef declares an unconditional parent/child relationship.
type SubstateDef struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// EntryPointDef declares a conditional/filtered entry point.
type EntryPointDef struct {
	Parent   string `yaml:"parent"`
	Child    string `yaml:"child"`
	Event    string `yaml:"event"`
	Guard    string `yaml:"guard"`
	Expected bool   `yaml:"expected"`
}

// TransitionDef declares a transition, external unless Kind says
// otherwise.
type TransitionDef struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Event    string `yaml:"event"`
	Kind     string `yaml:"kind"` // "external" (default), "internal"
	Callback string `yaml:"callback"`
	Guard    string `yaml:"guard"`
	Expected bool   `yaml:"expected"`
}

// HistoryDef declares a history pseudo-state.
type HistoryDef struct {
	Parent        string `yaml:"parent"`
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"` // "shallow" (default), "deep"
	DefaultTarget string `yaml:"default_target"`
	Callback      string `yaml:"callback"`
}

// TimerDef binds a timer name to the event it posts.
type TimerDef struct {
	Name  string `yaml:"name"`
	Event string `yaml:"event"`
}

// StateActionDef declares a StartTimer/StopTimer/RestartTimer/
// Transition action run on entry or exit of a state.
type StateActionDef struct {
	State      string `yaml:"state"`
	Trigger    string `yaml:"trigger"` // "on_entry" (default), "on_exit"
	Kind       string `yaml:"kind"`    // "start_timer", "stop_timer", "restart_timer", "transition"
	Timer      string `yaml:"timer"`
	IntervalMs int64  `yaml:"interval_ms"`
	SingleShot bool   `yaml:"single_shot"`
	Event      string `yaml:"event"`
}

// Registry resolves the named guards/callbacks a Definition refers to.
// Application code builds one alongside its YAML file.
type Registry struct {
	Guards    map[string]hsm.Guard
	Callbacks map[string]hsm.Callback
}

// Load reads and parses path into a Definition.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hsmconfig: read %s: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("hsmconfig: parse %s: %w", path, err)
	}
	return &def, nil
}

// Apply replays the Definition into b, resolving named guards and
// callbacks through reg.
func (d *Definition) Apply(b *hsm.Builder, reg Registry) error {
	for _, s := range d.States {
		cb := hsm.StateCallbacks{
			OnEntering: reg.Callbacks[s.OnEntering],
			OnState:    reg.Callbacks[s.OnState],
			OnExiting:  reg.Callbacks[s.OnExiting],
		}
		if s.Final {
			b.AddFinalState(s.Name, s.ExitEvent, cb)
		} else {
			b.AddState(s.Name, cb)
		}
	}

	for _, s := range d.Substates {
		b.AddChild(s.Parent, s.Child)
	}

	for _, e := range d.EntryPoints {
		b.AddEntryPoint(e.Parent, e.Child, e.Event, reg.Guards[e.Guard], e.Expected)
	}

	for _, t := range d.Transitions {
		kind := hsm.External
		if t.Kind == "internal" {
			kind = hsm.Internal
		}
		if t.From == t.To {
			b.AddSelfTransition(t.From, t.Event, kind, reg.Callbacks[t.Callback], reg.Guards[t.Guard], t.Expected)
		} else {
			b.AddTransition(t.From, t.To, t.Event, reg.Callbacks[t.Callback], reg.Guards[t.Guard], t.Expected)
		}
	}

	for _, h := range d.History {
		kind := hsm.Shallow
		if h.Kind == "deep" {
			kind = hsm.Deep
		}
		b.AddHistory(h.Parent, h.Name, kind, h.DefaultTarget, reg.Callbacks[h.Callback])
	}

	for _, t := range d.Timers {
		b.AddTimer(t.Name, t.Event)
	}

	for _, a := range d.Actions {
		trigger := hsm.OnEntry
		if a.Trigger == "on_exit" {
			trigger = hsm.OnExit
		}
		var kind hsm.ActionKind
		switch a.Kind {
		case "stop_timer":
			kind = hsm.StopTimer
		case "restart_timer":
			kind = hsm.RestartTimer
		case "transition":
			kind = hsm.TransitionAction
		default:
			kind = hsm.StartTimer
		}
		b.AddStateAction(a.State, trigger, kind, a.Timer, a.IntervalMs, a.SingleShot, a.Event)
	}

	if d.InitialState != "" {
		b.WithInitialState(d.InitialState)
	}

	return b.Err()
}
