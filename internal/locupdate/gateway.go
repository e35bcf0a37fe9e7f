// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locupdate

import (
	"time"
)

// Gateway is the host positioning service an Updater arbitrates over. It supplies
// provider names and last-known fixes and owns the update-subscription primitives.
type Gateway interface {
	// Providers enumerates all position providers currently known to the host.
	// The enumeration order is host-defined and not guaranteed to be stable
	// across calls.
	Providers() []string
	// LastKnownFix returns the cached last fix of the given provider, if the
	// provider has reported one.
	LastKnownFix(provider string) (Fix, bool)
	// SupportsCriteria reports whether the host can arbitrate providers by
	// accuracy criteria on Subscribe. Hosts without this capability only offer
	// per-provider subscriptions via SubscribeProvider.
	SupportsCriteria() bool
	// Subscribe requests continuous updates matching the full update
	// configuration. The host arbitrates among all providers that satisfy the
	// configured criteria.
	Subscribe(cfg Config, target Target) (Subscription, error)
	// SubscribeProvider requests continuous updates from a single named
	// provider, honoring interval and distance only.
	SubscribeProvider(provider string, interval time.Duration, distance float64,
		target Target) (Subscription, error)
	// Unsubscribe releases an active subscription. Releasing an unknown or
	// already released subscription is an error.
	Unsubscribe(sub Subscription) error
}

// Subscription is an opaque token representing an active update subscription.
type Subscription any

// Target is the delivery endpoint for raw fix notifications. The host invokes
// Deliver on a dispatch context of its own choosing.
type Target interface {
	Deliver(n Notification)
}

// Notification is a raw fix-changed event as produced by the host platform. A nil
// Fix means the event carried no usable position payload.
type Notification struct {
	Provider string
	Fix      *Fix
}
