// Package authority evaluates whether a set of provided keys and accounts
// satisfies a declared permission. The checker resolves permissions through
// a caller-supplied lookup and recurses into delegated account authorities
// up to a configured depth.
package authority

import (
	"github.com/rony4d/go-dawn-chain/inter"
)

// PermissionLookup resolves a permission level to its authority.
type PermissionLookup func(inter.PermissionLevel) (inter.Authority, error)

// Checker evaluates permission levels against a fixed set of provided keys
// and accounts. It tracks which keys contributed, so callers can reject
// transactions bearing irrelevant signatures.
type Checker struct {
	lookup           PermissionLookup
	maxDepth         uint16
	providedKeys     []inter.PubKey
	usedKeys         []bool
	providedAccounts map[inter.Name]bool
}

// NewChecker builds a checker over the provided keys and (optionally)
// pre-authorized accounts.
func NewChecker(lookup PermissionLookup, maxDepth uint16, providedKeys []inter.PubKey, providedAccounts []inter.Name) *Checker {
	accounts := make(map[inter.Name]bool, len(providedAccounts))
	for _, a := range providedAccounts {
		accounts[a] = true
	}
	keys := append([]inter.PubKey(nil), providedKeys...)
	return &Checker{
		lookup:           lookup,
		maxDepth:         maxDepth,
		providedKeys:     keys,
		usedKeys:         make([]bool, len(keys)),
		providedAccounts: accounts,
	}
}

// Satisfied reports whether the permission's authority is recursively
// satisfied by the provided keys and accounts within the depth limit.
func (c *Checker) Satisfied(level inter.PermissionLevel) bool {
	return c.satisfied(level, 0)
}

func (c *Checker) satisfied(level inter.PermissionLevel, depth uint16) bool {
	if depth > c.maxDepth {
		return false
	}
	if c.providedAccounts[level.Actor] {
		return true
	}
	auth, err := c.lookup(level)
	if err != nil {
		return false
	}

	total := uint32(0)
	for _, kw := range auth.Keys {
		for i, pk := range c.providedKeys {
			if pk == kw.Key {
				c.usedKeys[i] = true
				total += uint32(kw.Weight)
				break
			}
		}
		if total >= auth.Threshold {
			return true
		}
	}
	for _, aw := range auth.Accounts {
		if c.satisfied(aw.Permission, depth+1) {
			total += uint32(aw.Weight)
		}
		if total >= auth.Threshold {
			return true
		}
	}
	return total >= auth.Threshold
}

// AllKeysUsed reports whether every provided key contributed to some
// satisfied authority.
func (c *Checker) AllKeysUsed() bool {
	for _, used := range c.usedKeys {
		if !used {
			return false
		}
	}
	return true
}

// UsedKeys returns the provided keys that contributed.
func (c *Checker) UsedKeys() []inter.PubKey {
	var keys []inter.PubKey
	for i, used := range c.usedKeys {
		if used {
			keys = append(keys, c.providedKeys[i])
		}
	}
	return keys
}

// UnusedKeys returns the provided keys that did not contribute.
func (c *Checker) UnusedKeys() []inter.PubKey {
	var keys []inter.PubKey
	for i, used := range c.usedKeys {
		if !used {
			keys = append(keys, c.providedKeys[i])
		}
	}
	return keys
}
