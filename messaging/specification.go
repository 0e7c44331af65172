package messaging

import "maps"

// Specification declares commands per namespace:
//
//	{namespace: {command: direction}}
type Specification map[string]map[string]Direction

// Clone returns a deep copy of the specification.
func (s Specification) Clone() Specification {
	out := make(Specification, len(s))
	for ns, commands := range s {
		out[ns] = maps.Clone(commands)
	}
	return out
}

// Merge folds other into s: namespaces are merged command by command and a
// command already present in s is overwritten by the one in other.
func (s Specification) Merge(other Specification) {
	for ns, commands := range other {
		dst, ok := s[ns]
		if !ok {
			dst = make(map[string]Direction, len(commands))
			s[ns] = dst
		}
		maps.Copy(dst, commands)
	}
}

// Provider contributes a chunk of protocol to a shared specification.
type Provider interface {
	Specification() Specification
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() Specification

// Specification implements Provider.
func (f ProviderFunc) Specification() Specification { return f() }

// Specification implements Provider, so a literal specification can be
// passed wherever a provider is expected.
func (s Specification) Specification() Specification { return s }

// Specifications merges the specifications of the given providers in order.
// When two providers declare the same command in the same namespace, the later
// one wins silently; distinct commands of a namespace coexist.
func Specifications(providers ...Provider) Specification {
	total := make(Specification)
	for _, p := range providers {
		if p == nil {
			continue
		}
		total.Merge(p.Specification())
	}
	return total
}
