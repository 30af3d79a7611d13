// Package link builds the link-layer devices a stack reads frames
// from. Device implementations live in subpackages and register a
// Builder here at init time; the daemon constructs devices from
// configuration by type name.
package link

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/tyto/internal/stack"
)

// Sentinel errors.
var (
	ErrUnknownType    = errors.New("tyto: unknown device type")
	ErrTruncatedFrame = errors.New("tyto: truncated ethernet frame")
)

// Builder constructs a device from the free-form options block of its
// configuration entry.
type Builder func(name string, mtu int, opts map[string]any) (stack.Device, error)

var (
	mu       sync.RWMutex
	builders = make(map[string]Builder)
)

// Register makes a device type available to New. It is called from the
// init function of each device subpackage. Registering a nil builder,
// an empty type name, or the same type twice is a programming error.
func Register(typ string, b Builder) {
	mu.Lock()
	defer mu.Unlock()

	if typ == "" {
		panic("link: register with empty device type")
	}
	if b == nil {
		panic("link: register nil builder for type " + typ)
	}
	if _, exists := builders[typ]; exists {
		panic("link: device type " + typ + " already registered")
	}
	builders[typ] = b
}

// New constructs a device of the given type. The options map is the
// device entry's untyped options block; each builder decodes it into
// its own config struct.
func New(typ, name string, mtu int, opts map[string]any) (stack.Device, error) {
	mu.RLock()
	b, exists := builders[typ]
	mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return b(name, mtu, opts)
}

// Types returns the registered device type names in sorted order.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(builders))
	for typ := range builders {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// DecodeOptions maps an untyped options block onto a typed per-device
// config struct. Weak typing is enabled so numeric options survive the
// float64 round-trip of JSON-sourced configuration.
func DecodeOptions(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("decode device options: %w", err)
	}
	return nil
}
