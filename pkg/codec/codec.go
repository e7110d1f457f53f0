// Package codec turns payloads into self-describing handler text and back.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/security"
)

// TagPrefix starts the YAML tag that records a payload's registered type.
const TagPrefix = "!delayed/"

var (
	// ErrUnregisteredType is returned when encoding a payload whose type was never registered.
	ErrUnregisteredType = errors.New("delayed: payload type is not registered")

	// ErrUnknownType is returned by a Loader that has no definition for a type name.
	ErrUnknownType = errors.New("delayed: unknown payload type")

	// ErrUnsupportedField is returned when a payload holds a field that cannot be serialized.
	ErrUnsupportedField = errors.New("delayed: payload field type cannot be serialized")

	errNilFactory = errors.New("delayed: payload factory must return a non-nil pointer")
)

var marshalerType = reflect.TypeOf((*yaml.Marshaler)(nil)).Elem()

var handlerTag = regexp.MustCompile(`!delayed/([^\s]+)`)

// Factory builds an empty payload that decoding fills in. Unexported state
// set by the factory survives decoding, so a factory may hand every payload
// it builds a shared collaborator.
type Factory func() core.Payload

// Loader gives the registry one chance to learn about a type it has not
// seen, typically by registering it. Returning an error wrapping
// ErrUnknownType means the type does not exist; any other error is treated
// as fatal and returned from Decode unchanged.
type Loader func(r *Registry, name string) error

// Registry maps type names to payload factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     map[reflect.Type]string
	loader    Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		names:     make(map[reflect.Type]string),
	}
}

// Register associates name with factory. Registering a name again replaces it.
func (r *Registry) Register(name string, factory Factory) error {
	if err := security.ValidateTypeName(name); err != nil {
		return err
	}
	if factory == nil {
		return errNilFactory
	}
	sample := factory()
	v := reflect.ValueOf(sample)
	if sample == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return errNilFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	r.names[v.Type()] = name
	return nil
}

// SetLoader installs the fallback used for unregistered type names.
func (r *Registry) SetLoader(l Loader) {
	r.mu.Lock()
	r.loader = l
	r.mu.Unlock()
}

// Registered reports whether name has a factory.
func (r *Registry) Registered(name string) bool {
	_, ok := r.factory(name)
	return ok
}

// NameOf returns the registered type name of p.
func (r *Registry) NameOf(p core.Payload) (string, bool) {
	if p == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[reflect.TypeOf(p)]
	return name, ok
}

func (r *Registry) factory(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Encode serializes p's exported fields as a YAML mapping tagged with its type name.
func (r *Registry) Encode(p core.Payload) (string, error) {
	if p == nil {
		return "", core.ErrInvalidPayload
	}
	name, ok := r.NameOf(p)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnregisteredType, p)
	}

	if err := checkEncodable(reflect.TypeOf(p), map[reflect.Type]bool{}); err != nil {
		return "", fmt.Errorf("delayed: encode %s: %w", name, err)
	}

	var node yaml.Node
	if err := node.Encode(p); err != nil {
		return "", fmt.Errorf("delayed: encode %s: %w", name, err)
	}
	if node.Kind != yaml.MappingNode {
		return "", fmt.Errorf("delayed: encode %s: payload must serialize to a mapping", name)
	}
	node.Tag = TagPrefix + name

	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", fmt.Errorf("delayed: encode %s: %w", name, err)
	}
	return "--- " + string(out), nil
}

// Decode rebuilds a payload from handler text.
//
// Problems with the text itself come back as *core.DeserializationError.
// When the embedded type is unknown and a Loader is set, the loader runs once
// and the lookup is retried; a loader failure other than ErrUnknownType is
// returned as is.
func (r *Registry) Decode(handler string) (core.Payload, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(handler), &doc); err != nil {
		return nil, deserializationError(handler, err.Error(), err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, deserializationError(handler, "empty handler", nil)
	}
	root := doc.Content[0]

	name, ok := strings.CutPrefix(root.Tag, TagPrefix)
	if !ok || name == "" {
		return nil, deserializationError(handler, fmt.Sprintf("missing %s type tag", TagPrefix), nil)
	}

	factory, ok := r.factory(name)
	if !ok {
		var err error
		factory, err = r.load(name)
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				return nil, deserializationError(handler, err.Error(), err)
			}
			return nil, err
		}
	}

	p := factory()
	if v := reflect.ValueOf(p); p == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, deserializationError(handler, fmt.Sprintf("factory for %s returned no payload", name), nil)
	}

	root.Tag = "!!map"
	if err := root.Decode(p); err != nil {
		return nil, deserializationError(handler, err.Error(), err)
	}
	return p, nil
}

func (r *Registry) load(name string) (Factory, error) {
	r.mu.RLock()
	loader := r.loader
	r.mu.RUnlock()

	if loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	if err := loader(r, name); err != nil {
		return nil, err
	}
	factory, ok := r.factory(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return factory, nil
}

// TypeName extracts the type name embedded in handler text without decoding it.
func TypeName(handler string) string {
	m := handlerTag.FindStringSubmatch(handler)
	if m == nil {
		return ""
	}
	return m[1]
}

// checkEncodable walks t for kinds the YAML encoder cannot represent.
func checkEncodable(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] || t.Implements(marshalerType) || reflect.PointerTo(t).Implements(marshalerType) {
		return nil
	}
	seen[t] = true

	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("%w: %s", ErrUnsupportedField, t)
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return checkEncodable(t.Elem(), seen)
	case reflect.Map:
		if err := checkEncodable(t.Key(), seen); err != nil {
			return err
		}
		return checkEncodable(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("yaml") == "-" {
				continue
			}
			if err := checkEncodable(f.Type, seen); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

func deserializationError(handler, msg string, err error) *core.DeserializationError {
	return &core.DeserializationError{Message: msg, Handler: handler, Err: err}
}
