package analyzer

import "fmt"

// registry is the data-driven analyzer lookup spec §9 calls for:
// name -> constructor, no runtime reflection. New analyzers register
// themselves here; the CLI's --analyzer flag is just a key into it.
var registry = map[string]func() Analyzer{
	"mock": func() Analyzer { return NewMock() },
}

// Register adds (or replaces) a named analyzer constructor. Called from
// init() by analyzer implementations outside this package.
func Register(name string, construct func() Analyzer) {
	registry[name] = construct
}

// Get constructs the analyzer registered under name.
func Get(name string) (Analyzer, error) {
	construct, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("analyzer: unknown analyzer %q", name)
	}
	return construct(), nil
}
