package remote

import "fmt"

// FactoryFunc creates a platform client for one source.
type FactoryFunc func() (Client, error)

var registry = make(map[string]FactoryFunc)

// Register registers a platform client factory for a source
// identifier ("bitbucket", "github"). Client packages register
// themselves at init time.
func Register(source string, factory FactoryFunc) {
	registry[source] = factory
}

// New creates a client for the given source.
func New(source string) (Client, error) {
	factory, ok := registry[source]
	if !ok {
		return nil, fmt.Errorf("no API client registered for source: %s", source)
	}
	return factory()
}
