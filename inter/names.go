// Package inter defines the core consensus data structures of the dawn
// chain: account names, block and transaction types, producer schedules,
// and the execution trace tree produced while applying blocks.
package inter

// Name identifies an account. Names double as scopes: a transaction
// declares the set of account state it reads and writes by name.
type Name string

// PermissionName identifies a permission of an account ("owner", "active",
// or a custom child permission).
type PermissionName string

// ActionName identifies an action of a contract.
type ActionName string

// RegionID identifies a top-level partition of a block. Regions are a
// future sharding unit across independent state spaces; the current chain
// always produces a single region 0.
type RegionID uint16

// PermissionLevel names a permission of a specific account.
type PermissionLevel struct {
	Actor      Name
	Permission PermissionName
}
