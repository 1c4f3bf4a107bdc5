package tool

import (
	"fmt"
	"sort"
	"sync"
)

// Catalogue is the process-wide set of known tool descriptors. It is
// populated during startup and effectively immutable afterwards; session
// registries are built as copy-on-replace views over it.
type Catalogue struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{tools: make(map[string]Descriptor)}
}

// Register inserts or replaces a descriptor by name.
func (c *Catalogue) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool descriptor requires a name")
	}
	if d.Func == nil {
		return fmt.Errorf("tool %q requires a callable", d.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[d.Name] = d
	return nil
}

// Get looks a descriptor up by name.
func (c *Catalogue) Get(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[name]
	return d, ok
}

// ByTag returns every descriptor carrying the tag, sorted by name.
func (c *Catalogue) ByTag(tag string) []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Descriptor
	for _, d := range c.tools {
		if d.HasTag(tag) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all registered tool names, sorted.
func (c *Catalogue) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Terminator returns the terminal tool from the catalogue, if present.
func (c *Catalogue) Terminator() (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.tools[TerminateToolName]
	if !ok || !d.Terminal {
		return Descriptor{}, false
	}
	return d, true
}

// Len returns the number of registered descriptors.
func (c *Catalogue) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}
