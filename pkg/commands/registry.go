package commands

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]{0,31}$`)

// Match is the result of a successful Resolve.
type Match struct {
	Definition Definition
	Args       []string
}

type entry struct {
	def Definition
	key string
	re  *regexp.Regexp
	seq uint64
}

// Registry maps triggers to handlers. Built-in definitions always resolve
// before plugin definitions; among plugins the earliest registration wins.
type Registry struct {
	mu       sync.RWMutex
	prefix   string
	builtins []*entry
	plugins  []*entry
	keys     map[string]*entry
	seq      uint64
}

func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		keys:   make(map[string]*entry),
	}
}

// Prefix returns the command prefix triggers are compiled with.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Register adds a single definition. See RegisterAll.
func (r *Registry) Register(def Definition) error {
	return r.RegisterAll(def.Owner, []Definition{def})
}

// RegisterAll adds every definition under owner, or none of them.
func (r *Registry) RegisterAll(owner string, defs []Definition) error {
	compiled, err := r.compileAll(owner, defs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkCollisions(owner, compiled, false); err != nil {
		return err
	}
	r.insert(compiled)
	return nil
}

// Replace swaps the definitions owned by owner for defs in one step. The
// old definitions stay in place if any new one collides with a different
// owner.
func (r *Registry) Replace(owner string, defs []Definition) error {
	compiled, err := r.compileAll(owner, defs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkCollisions(owner, compiled, true); err != nil {
		return err
	}
	r.removeOwner(owner)
	r.insert(compiled)
	return nil
}

// UnregisterAll removes every definition owned by owner and reports how
// many were removed.
func (r *Registry) UnregisterAll(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeOwner(owner)
}

// Resolve finds the definition whose trigger matches text.
func (r *Registry) Resolve(text string) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, group := range [][]*entry{r.builtins, r.plugins} {
		for _, e := range group {
			groups := e.re.FindStringSubmatch(text)
			if groups == nil {
				continue
			}
			return Match{Definition: e.def, Args: groups[1:]}, true
		}
	}
	return Match{}, false
}

// List returns the definitions owned by owner in registration order. An
// empty owner lists everything, built-ins first.
func (r *Registry) List(owner string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Definition
	for _, group := range [][]*entry{r.builtins, r.plugins} {
		for _, e := range group {
			if owner == "" || e.def.Owner == owner {
				out = append(out, e.def)
			}
		}
	}
	return out
}

// Owners returns every owner with at least one definition, in the order
// their first definition was registered.
func (r *Registry) Owners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	first := make(map[string]uint64)
	for _, group := range [][]*entry{r.builtins, r.plugins} {
		for _, e := range group {
			if seq, ok := first[e.def.Owner]; !ok || e.seq < seq {
				first[e.def.Owner] = e.seq
			}
		}
	}
	owners := make([]string, 0, len(first))
	for owner := range first {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return first[owners[i]] < first[owners[j]] })
	return owners
}

// Len reports the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.builtins) + len(r.plugins)
}

func (r *Registry) compileAll(owner string, defs []Definition) ([]*entry, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidDefinition)
	}
	out := make([]*entry, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		def.Owner = owner
		e, err := r.compile(def)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[e.key]; dup {
			return nil, fmt.Errorf("%w: %q is declared twice by %s", ErrCollision, def.Trigger(), owner)
		}
		seen[e.key] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func (r *Registry) compile(def Definition) (*entry, error) {
	if def.Handler == nil {
		return nil, fmt.Errorf("%w: %q has no handler", ErrInvalidDefinition, def.Trigger())
	}

	var expr, key string
	switch {
	case def.Name != "":
		if !namePattern.MatchString(def.Name) {
			return nil, fmt.Errorf("%w: bad command name %q", ErrInvalidDefinition, def.Name)
		}
		expr = "^" + regexp.QuoteMeta(r.prefix) + regexp.QuoteMeta(def.Name) + def.Args + "$"
		key = "cmd:" + strings.ToLower(def.Name)
	case def.Pattern != "":
		expr = def.Pattern
		key = "re:" + def.Pattern
	default:
		return nil, fmt.Errorf("%w: neither name nor pattern set", ErrInvalidDefinition)
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidDefinition, def.Trigger(), err)
	}
	return &entry{def: def, key: key, re: re}, nil
}

func (r *Registry) checkCollisions(owner string, compiled []*entry, replacing bool) error {
	for _, e := range compiled {
		existing, ok := r.keys[e.key]
		if !ok {
			continue
		}
		if replacing && existing.def.Owner == owner {
			continue
		}
		return fmt.Errorf("%w: %q is already registered by %s", ErrCollision, e.def.Trigger(), existing.def.Owner)
	}
	return nil
}

func (r *Registry) insert(compiled []*entry) {
	for _, e := range compiled {
		r.seq++
		e.seq = r.seq
		r.keys[e.key] = e
		if e.def.Owner == BuiltinOwner {
			r.builtins = append(r.builtins, e)
		} else {
			r.plugins = append(r.plugins, e)
		}
	}
}

func (r *Registry) removeOwner(owner string) int {
	removed := 0
	filter := func(group []*entry) []*entry {
		kept := group[:0]
		for _, e := range group {
			if e.def.Owner == owner {
				delete(r.keys, e.key)
				removed++
				continue
			}
			kept = append(kept, e)
		}
		for i := len(kept); i < len(group); i++ {
			group[i] = nil
		}
		return kept
	}
	r.builtins = filter(r.builtins)
	r.plugins = filter(r.plugins)
	return removed
}
