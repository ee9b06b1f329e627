package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrTypeRequired      = errors.New("action type is required")
	ErrTypeUnknown       = errors.New("action type is not registered")
	ErrParametersInvalid = errors.New("parameters do not match the action")
)

// Definition registers one action.
type Definition struct {
	Type ActionType
	// FailureEvent is audited when no command instance could be built.
	FailureEvent string
}

// QueryDefinition registers one query.
type QueryDefinition struct {
	Type QueryType
}

type actionEntry struct {
	def   Definition
	build func(params any, ec ExecContext) (Command, error)
}

type queryEntry struct {
	def   QueryDefinition
	build func(params any, ec ExecContext) (Query, error)
}

// Registry maps action and query types to typed factories.
type Registry struct {
	mu      sync.RWMutex
	actions map[ActionType]actionEntry
	queries map[QueryType]queryEntry
}

func NewRegistry() *Registry {
	return &Registry{actions: map[ActionType]actionEntry{}, queries: map[QueryType]queryEntry{}}
}

// Register binds an action to a factory over its parameter type P. The
// dispatcher accepts a P, or JSON that decodes into one.
func Register[P any](r *Registry, def Definition, factory func(P, ExecContext) Command) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = ActionType(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if factory == nil {
		return fmt.Errorf("factory is required for %s", def.Type)
	}
	if strings.TrimSpace(def.FailureEvent) == "" {
		return fmt.Errorf("failure audit event is required for %s", def.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[def.Type]; exists {
		return fmt.Errorf("action type already registered: %s", def.Type)
	}
	r.actions[def.Type] = actionEntry{
		def: def,
		build: func(params any, ec ExecContext) (Command, error) {
			p, err := decodeParams[P](params)
			if err != nil {
				return nil, err
			}
			cmd := factory(p, ec)
			if cmd == nil {
				return nil, ErrParametersInvalid
			}
			return cmd, nil
		},
	}
	return nil
}

func RegisterQuery[P any](r *Registry, def QueryDefinition, factory func(P, ExecContext) Query) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = QueryType(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if factory == nil {
		return fmt.Errorf("factory is required for %s", def.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.queries[def.Type]; exists {
		return fmt.Errorf("query type already registered: %s", def.Type)
	}
	r.queries[def.Type] = queryEntry{
		def: def,
		build: func(params any, ec ExecContext) (Query, error) {
			p, err := decodeParams[P](params)
			if err != nil {
				return nil, err
			}
			q := factory(p, ec)
			if q == nil {
				return nil, ErrParametersInvalid
			}
			return q, nil
		},
	}
	return nil
}

// MustRegister panics on registration errors; for wiring at startup.
func MustRegister[P any](r *Registry, def Definition, factory func(P, ExecContext) Command) {
	if err := Register(r, def, factory); err != nil {
		panic(err)
	}
}

func MustRegisterQuery[P any](r *Registry, def QueryDefinition, factory func(P, ExecContext) Query) {
	if err := RegisterQuery(r, def, factory); err != nil {
		panic(err)
	}
}

func (r *Registry) action(t ActionType) (actionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.actions[ActionType(strings.TrimSpace(string(t)))]
	return e, ok
}

func (r *Registry) query(t QueryType) (queryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.queries[QueryType(strings.TrimSpace(string(t)))]
	return e, ok
}

// Actions lists registered action types in order.
func (r *Registry) Actions() []ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ActionType, 0, len(r.actions))
	for t := range r.actions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Queries() []QueryType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]QueryType, 0, len(r.queries))
	for t := range r.queries {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decodeParams[P any](params any) (P, error) {
	var zero P
	switch v := params.(type) {
	case P:
		return v, nil
	case *P:
		if v == nil {
			return zero, ErrParametersInvalid
		}
		return *v, nil
	case json.RawMessage:
		return decodeJSON[P](v)
	case []byte:
		return decodeJSON[P](v)
	default:
		return zero, ErrParametersInvalid
	}
}

func decodeJSON[P any](raw []byte) (P, error) {
	var p P
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrParametersInvalid, err)
	}
	return p, nil
}
