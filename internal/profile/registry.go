// Package profile holds the named model configurations.
//
// Profiles are immutable once loaded. Runtime changes (the /config
// endpoint) build a fresh registry and swap the pointer; nothing mutates a
// live registry.
package profile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/factorio-gpt/companion-gateway/internal/config"
)

// ErrUnknown indicates a lookup for a profile that is not configured.
var ErrUnknown = errors.New("unknown profile")

// Profile is a named bundle of model-call parameters.
type Profile struct {
	Name            string
	Model           string
	Temperature     float64
	MaxTokens       int
	PromptAdditions string
}

// Registry is an immutable set of profiles plus a default.
type Registry struct {
	profiles    map[string]Profile
	defaultName string
}

// NewRegistry builds a registry from config. Profile names are unique by
// map construction; the default must exist and every profile must be sane.
func NewRegistry(cfgs map[string]config.ProfileConfig, defaultName string) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no profiles configured")
	}
	profiles := make(map[string]Profile, len(cfgs))
	for name, c := range cfgs {
		if c.MaxTokens <= 0 {
			return nil, fmt.Errorf("profile %q: max_tokens must be positive", name)
		}
		if c.Temperature < 0 || c.Temperature > 2 {
			return nil, fmt.Errorf("profile %q: temperature %g out of range [0,2]", name, c.Temperature)
		}
		model := c.Model
		if model == "" {
			// The default set names profiles after their model.
			model = name
		}
		profiles[name] = Profile{
			Name:            name,
			Model:           model,
			Temperature:     c.Temperature,
			MaxTokens:       c.MaxTokens,
			PromptAdditions: c.PromptAdditions,
		}
	}
	if _, ok := profiles[defaultName]; !ok {
		return nil, fmt.Errorf("default profile %q is not configured", defaultName)
	}
	return &Registry{profiles: profiles, defaultName: defaultName}, nil
}

// Resolve looks up a profile by name. An empty name resolves to the default.
func (r *Registry) Resolve(name string) (Profile, error) {
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return p, nil
}

// DefaultName returns the default profile's name.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names returns all configured profile names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
