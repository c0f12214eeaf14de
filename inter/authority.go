package inter

// KeyWeight is a public key's weight towards an authority threshold.
type KeyWeight struct {
	Key    PubKey
	Weight uint16
}

// AccountWeight is another account permission's weight towards an authority
// threshold.
type AccountWeight struct {
	Permission PermissionLevel
	Weight     uint16
}

// Authority declares what it takes to act as a permission: any combination
// of keys and delegated account permissions whose weights sum to at least
// Threshold.
type Authority struct {
	Threshold uint32
	Keys      []KeyWeight
	Accounts  []AccountWeight
}

// SingleKeyAuthority builds the common 1-of-1 authority over one key.
func SingleKeyAuthority(key PubKey) Authority {
	return Authority{
		Threshold: 1,
		Keys:      []KeyWeight{{Key: key, Weight: 1}},
	}
}

// Copy returns a deep copy of the authority.
func (a Authority) Copy() Authority {
	cp := a
	cp.Keys = make([]KeyWeight, len(a.Keys))
	copy(cp.Keys, a.Keys)
	cp.Accounts = make([]AccountWeight, len(a.Accounts))
	copy(cp.Accounts, a.Accounts)
	return cp
}
