package chip

import (
	"fmt"
	"sort"
	"sync"
)

// RegisterFunc registers a chipset package's chips onto a Registry.
type RegisterFunc func(*Registry) error

var (
	chipsetsMu sync.Mutex
	chipsets   = map[string]RegisterFunc{}
)

// RegisterChipset adds a named chipset to the process-wide discovery table.
// Chipset packages call this from an init() function. Go has no
// reflection-based package walk, so this static table stands in for
// namespace-based chip discovery. It is consulted only once, by
// Discover, never by the Processor at run time.
func RegisterChipset(name string, fn RegisterFunc) {
	chipsetsMu.Lock()
	defer chipsetsMu.Unlock()
	if _, exists := chipsets[name]; exists {
		panic(fmt.Sprintf("chip: chipset %q already registered", name))
	}
	chipsets[name] = fn
}

// KnownChipsets returns every chipset name registered via RegisterChipset,
// sorted, for introspection and error messages.
func KnownChipsets() []string {
	chipsetsMu.Lock()
	defer chipsetsMu.Unlock()
	names := make([]string, 0, len(chipsets))
	for n := range chipsets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Discover registers every named chipset's chips onto r. Unknown chipset
// names are a fatal configuration error.
func (r *Registry) Discover(packageRoots ...string) error {
	chipsetsMu.Lock()
	fns := make(map[string]RegisterFunc, len(packageRoots))
	for _, name := range packageRoots {
		fn, ok := chipsets[name]
		if !ok {
			chipsetsMu.Unlock()
			return fmt.Errorf("chip: unknown chipset %q (known: %v)", name, KnownChipsets())
		}
		fns[name] = fn
	}
	chipsetsMu.Unlock()

	for _, name := range packageRoots {
		if err := fns[name](r); err != nil {
			return fmt.Errorf("chip: discovering chipset %q: %w", name, err)
		}
	}
	return nil
}
