package authority

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-dawn-chain/inter"
)

func key(b byte) inter.PubKey {
	var pk inter.PubKey
	pk[0] = b
	return pk
}

func lookupFrom(authorities map[inter.PermissionLevel]inter.Authority) PermissionLookup {
	return func(level inter.PermissionLevel) (inter.Authority, error) {
		auth, ok := authorities[level]
		if !ok {
			return inter.Authority{}, fmt.Errorf("no permission %s of %s", level.Permission, level.Actor)
		}
		return auth, nil
	}
}

func TestSingleKeySatisfied(t *testing.T) {
	require := require.New(t)

	level := inter.PermissionLevel{Actor: "alice", Permission: "active"}
	lookup := lookupFrom(map[inter.PermissionLevel]inter.Authority{
		level: inter.SingleKeyAuthority(key(1)),
	})

	c := NewChecker(lookup, 6, []inter.PubKey{key(1)}, nil)
	require.True(c.Satisfied(level))
	require.True(c.AllKeysUsed())
	require.Equal([]inter.PubKey{key(1)}, c.UsedKeys())
	require.Empty(c.UnusedKeys())

	c = NewChecker(lookup, 6, []inter.PubKey{key(2)}, nil)
	require.False(c.Satisfied(level))
}

func TestThresholdOverKeys(t *testing.T) {
	require := require.New(t)

	level := inter.PermissionLevel{Actor: "multi", Permission: "active"}
	lookup := lookupFrom(map[inter.PermissionLevel]inter.Authority{
		level: {
			Threshold: 2,
			Keys: []inter.KeyWeight{
				{Key: key(1), Weight: 1},
				{Key: key(2), Weight: 1},
				{Key: key(3), Weight: 2},
			},
		},
	})

	require.False(NewChecker(lookup, 6, []inter.PubKey{key(1)}, nil).Satisfied(level))
	require.True(NewChecker(lookup, 6, []inter.PubKey{key(1), key(2)}, nil).Satisfied(level))
	require.True(NewChecker(lookup, 6, []inter.PubKey{key(3)}, nil).Satisfied(level))
}

func TestDelegatedAccounts(t *testing.T) {
	require := require.New(t)

	parent := inter.PermissionLevel{Actor: "dao", Permission: "active"}
	child := inter.PermissionLevel{Actor: "alice", Permission: "active"}
	lookup := lookupFrom(map[inter.PermissionLevel]inter.Authority{
		parent: {
			Threshold: 1,
			Accounts:  []inter.AccountWeight{{Permission: child, Weight: 1}},
		},
		child: inter.SingleKeyAuthority(key(7)),
	})

	c := NewChecker(lookup, 6, []inter.PubKey{key(7)}, nil)
	require.True(c.Satisfied(parent))
	require.True(c.AllKeysUsed())
}

func TestRecursionDepthLimit(t *testing.T) {
	require := require.New(t)

	// a -> b -> c, key sits at the bottom
	a := inter.PermissionLevel{Actor: "a", Permission: "active"}
	b := inter.PermissionLevel{Actor: "b", Permission: "active"}
	c := inter.PermissionLevel{Actor: "c", Permission: "active"}
	lookup := lookupFrom(map[inter.PermissionLevel]inter.Authority{
		a: {Threshold: 1, Accounts: []inter.AccountWeight{{Permission: b, Weight: 1}}},
		b: {Threshold: 1, Accounts: []inter.AccountWeight{{Permission: c, Weight: 1}}},
		c: inter.SingleKeyAuthority(key(9)),
	})

	require.True(NewChecker(lookup, 2, []inter.PubKey{key(9)}, nil).Satisfied(a))
	require.False(NewChecker(lookup, 1, []inter.PubKey{key(9)}, nil).Satisfied(a))
}

func TestProvidedAccountsShortCircuit(t *testing.T) {
	require := require.New(t)

	level := inter.PermissionLevel{Actor: "alice", Permission: "active"}
	// no lookup data needed: the account itself is pre-authorized
	c := NewChecker(lookupFrom(nil), 6, nil, []inter.Name{"alice"})
	require.True(c.Satisfied(level))
}

func TestUnusedKeysReported(t *testing.T) {
	require := require.New(t)

	level := inter.PermissionLevel{Actor: "alice", Permission: "active"}
	lookup := lookupFrom(map[inter.PermissionLevel]inter.Authority{
		level: inter.SingleKeyAuthority(key(1)),
	})

	c := NewChecker(lookup, 6, []inter.PubKey{key(1), key(2)}, nil)
	require.True(c.Satisfied(level))
	require.False(c.AllKeysUsed())
	require.Equal([]inter.PubKey{key(2)}, c.UnusedKeys())
}
