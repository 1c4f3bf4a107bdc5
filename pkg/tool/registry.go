package tool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrMissingTerminator reports a catalogue without a terminal tool. This
// is a construction-time failure; the loop never starts without one.
var ErrMissingTerminator = errors.New("terminate tool is not available")

// ErrUnknownTool is the sentinel wrapped by UnknownToolError.
var ErrUnknownTool = errors.New("unknown tool")

// UnknownToolError reports a dispatch against a name that is not in the
// registry snapshot. Its text is fed back to the LLM during adaptation.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: '%s' is not a registered tool", e.Name)
}

func (e *UnknownToolError) Unwrap() error {
	return ErrUnknownTool
}

// Registry is one session's view of invokable tools. The snapshot is
// replaced atomically (relevance filtering, explicit ReplaceWith) and the
// loop is the registry's single writer.
type Registry struct {
	mu        sync.RWMutex
	snapshot  map[string]Descriptor
	catalogue *Catalogue

	// terminator is captured at construction even when the tag/name rules
	// do not select it, so ReplaceWith can always restore it.
	terminator    Descriptor
	hasTerminator bool
}

// NewRegistry scans the catalogue once and registers every descriptor
// whose name appears in names or whose tags intersect tags. The
// catalogue's terminator is captured into a side slot regardless of
// whether the rules selected it.
func NewRegistry(cat *Catalogue, tags []string, names []string) *Registry {
	r := &Registry{
		snapshot:  make(map[string]Descriptor),
		catalogue: cat,
	}

	wantName := make(map[string]bool, len(names))
	for _, n := range names {
		wantName[n] = true
	}
	wantTag := make(map[string]bool, len(tags))
	for _, t := range tags {
		wantTag[t] = true
	}

	if cat != nil {
		for _, name := range cat.Names() {
			d, _ := cat.Get(name)

			if d.Name == TerminateToolName && d.Terminal {
				r.terminator = d
				r.hasTerminator = true
			}

			include := wantName[d.Name]
			if !include {
				for _, t := range d.Tags {
					if wantTag[t] {
						include = true
						break
					}
				}
			}
			if include {
				r.snapshot[d.Name] = d
			}
		}
	}

	return r
}

// Register inserts or replaces a descriptor by name.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot[d.Name] = d
	if d.Name == TerminateToolName && d.Terminal {
		r.terminator = d
		r.hasTerminator = true
	}
}

// RegisterByName pulls a descriptor from the catalogue into the snapshot.
// Returns whether the name existed in the catalogue.
func (r *Registry) RegisterByName(name string) bool {
	if r.catalogue == nil {
		return false
	}
	d, ok := r.catalogue.Get(name)
	if !ok {
		return false
	}
	r.Register(d)
	return true
}

// RegisterTerminate guarantees the terminal tool is present in the
// snapshot, failing with ErrMissingTerminator when neither the side slot
// nor the catalogue can supply one.
func (r *Registry) RegisterTerminate() error {
	r.mu.Lock()
	if r.hasTerminator {
		r.snapshot[r.terminator.Name] = r.terminator
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if r.catalogue != nil {
		if d, ok := r.catalogue.Terminator(); ok {
			r.Register(d)
			return nil
		}
	}
	return ErrMissingTerminator
}

// Get returns the descriptor for name or an UnknownToolError.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.snapshot[name]
	if !ok {
		return Descriptor{}, &UnknownToolError{Name: name}
	}
	return d, nil
}

// Has reports whether name is in the current snapshot.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.snapshot[name]
	return ok
}

// HasTerminator reports whether the current snapshot carries the terminal
// tool. The loop refuses to run when it does not.
func (r *Registry) HasTerminator() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.snapshot[TerminateToolName]
	return ok && d.Terminal
}

// ReplaceWith atomically swaps the snapshot for the subset identified by
// names. Names not currently registered are ignored; the terminator is
// always reinstated when one was ever registered.
func (r *Registry) ReplaceWith(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]Descriptor, len(names)+1)
	for _, name := range names {
		if d, ok := r.snapshot[name]; ok {
			next[name] = d
		}
	}
	if r.hasTerminator {
		next[r.terminator.Name] = r.terminator
	}
	r.snapshot = next
}

// Snapshot returns a copy of the current name-to-descriptor mapping.
func (r *Registry) Snapshot() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Descriptor, len(r.snapshot))
	for k, v := range r.snapshot {
		out[k] = v
	}
	return out
}

// List returns the registered descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.snapshot))
	for _, d := range r.snapshot {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.snapshot))
	for name := range r.snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the snapshot size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshot)
}
