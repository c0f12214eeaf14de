package chain

import (
	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/dawn/genesis"
)

// Config assembles a Controller.
type Config struct {
	// Rules are the network rules this node enforces.
	Rules dawn.Rules

	// Genesis is the genesis document; it seeds the chain id and the
	// initial state of a fresh store.
	Genesis *genesis.Genesis

	// BlockLogDir is the directory of the append-only block log.
	BlockLogDir string

	// ReadOnly opens the block log without write access; blocks still apply
	// to the in-memory state, but irreversible blocks are not appended to
	// the log.
	ReadOnly bool
}
