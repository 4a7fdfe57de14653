package transform

import (
	"fmt"
	"sort"
)

// registry tracks transform functions by name
type registry map[string]Func

var (
	defaultRegistry = make(registry)
)

// Registered returns a sorted list of all registered transform names.
func Registered() []string {
	names := make([]string, 0, len(defaultRegistry))
	for name := range defaultRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Get(name string) (Func, bool) {
	fn, ok := defaultRegistry[name]
	return fn, ok
}

// Register registers a transform under a name
// Note: this is NOT thread safe, and should only be called in init()
func Register(name string, fn Func) error {
	if _, ok := defaultRegistry[name]; ok {
		return fmt.Errorf("failed to register transform %q: other transform already registered", name)
	}

	defaultRegistry[name] = fn

	return nil
}
