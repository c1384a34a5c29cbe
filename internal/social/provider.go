// Package social resolves display identities from linked identity-provider
// accounts and drives the provider login flows.
package social

import "sort"

// Provider names an external identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderVK     Provider = "vk"
)

// Providers lists the supported providers in display order.
var Providers = []Provider{ProviderGoogle, ProviderVK}

// Supported reports whether p is one of the supported providers.
func Supported(p Provider) bool {
	switch p {
	case ProviderGoogle, ProviderVK:
		return true
	default:
		return false
	}
}

// Label is the human readable provider name.
func (p Provider) Label() string {
	switch p {
	case ProviderGoogle:
		return "Google"
	case ProviderVK:
		return "VK"
	default:
		return string(p)
	}
}

func sortedIDs[T any](items []T, id func(T) uint) []T {
	out := append([]T(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}
