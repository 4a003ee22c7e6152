// Package registry derives stable entity identities for pool metrics
// and tracks which identities have been announced to the broker in the
// current connection session.
package registry

import "strings"

// identityPrefix namespaces every entity identity so unique_ids from
// this bridge cannot collide with other MQTT integrations on the hub.
const identityPrefix = "zpool"

// IdentityFor derives the stable entity identity for a (pool, field)
// pair. It is pure and deterministic: the same inputs always produce
// the same identity across process restarts, which keeps Home
// Assistant's historical entities linked to their sensors. The pool
// and field slugs are joined with a double underscore, which slug()
// can never emit, so distinct pairs map to distinct identities.
func IdentityFor(poolName, fieldKey string) string {
	return identityPrefix + "_" + Slug(poolName) + "__" + Slug(fieldKey)
}

// DeviceIdentity derives the stable Home Assistant device identifier
// for a pool, shared by all of the pool's sensor entities so the hub
// groups them on one device page.
func DeviceIdentity(poolName string) string {
	return identityPrefix + "_" + Slug(poolName)
}

// Slug lowercases s and collapses every run of characters outside
// [a-z0-9] to a single underscore. The output never contains two
// consecutive underscores and never starts or ends with one. Used for
// identity derivation and for pool-name segments in MQTT topics.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range strings.ToLower(s) {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !valid {
			if b.Len() > 0 {
				pendingSep = true
			}
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
