package backend

import (
	"fmt"
	"plugin"

	"github.com/mwantia/robinhood/data"
)

// DefaultPluginSymbol is the exported symbol looked up in a backend
// plugin: a variable satisfying the Factory interface.
const DefaultPluginSymbol = "RobinhoodBackendFactory"

// PluginLoader resolves external backends from Go plugins. A backend
// named "x" is loaded from the artifact "librbh-x.so" on the plugin
// search path. Resolution either fully succeeds or fails; it never
// partially constructs a backend.
type PluginLoader struct {
	// Symbol overrides the entry point looked up in the plugin.
	// Empty means DefaultPluginSymbol.
	Symbol string
}

func (l *PluginLoader) Load(scheme string) (Factory, error) {
	library := fmt.Sprintf("librbh-%s.so", scheme)

	p, err := plugin.Open(library)
	if err != nil {
		return nil, fmt.Errorf("%w: plugin %q: %v", data.ErrNotFound, library, err)
	}

	symbol := l.Symbol
	if symbol == "" {
		symbol = DefaultPluginSymbol
	}

	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: plugin %q: symbol %q: %v",
			data.ErrNotFound, library, symbol, err)
	}

	switch factory := sym.(type) {
	case Factory:
		return factory, nil
	case *Factory:
		return *factory, nil
	}
	return nil, fmt.Errorf("%w: plugin %q: symbol %q is not a backend factory",
		data.ErrNotFound, library, symbol)
}
