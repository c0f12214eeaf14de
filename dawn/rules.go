// Package dawn defines the network rules and configuration parameters for
// the dawn chain. The Rules type is the central structure holding all
// consensus-critical parameters of a deployment; ChainConfig is the subset
// stored on-chain in the global properties, immutable per round.
package dawn

import (
	"encoding/json"
	"time"

	"github.com/rony4d/go-dawn-chain/inter"
)

// Network identification constants.
const (
	MainNetworkID uint64 = 0xda0
	TestNetworkID uint64 = 0xda2
	FakeNetworkID uint64 = 0xda3
)

// Well-known account and permission names.
const (
	// ProducersAccountName is the special account whose active authority is
	// refreshed every round to the current producer set.
	ProducersAccountName inter.Name = "dawn.prods"

	// SystemAccountName owns the native contract actions.
	SystemAccountName inter.Name = "dawn"

	ActiveName inter.PermissionName = "active"
	OwnerName  inter.PermissionName = "owner"

	// AllScope and AuthScope are built-in scopes that bypass the
	// account-existence check on scope validation.
	AllScope  inter.Name = "dawn.all"
	AuthScope inter.Name = "dawn.auth"
)

// Percent100 is the fixed-point base of percentage arithmetic.
const Percent100 uint32 = 10000

// Percent converts a plain percentage to the fixed-point base.
func Percent(p uint32) uint32 {
	return p * Percent100 / 100
}

// ChainConfig is the on-chain configuration carried in the global
// properties. It can only change at round boundaries.
type ChainConfig struct {
	// MaxTransactionLifetime bounds how far in the future a transaction
	// expiration may lie, relative to head time.
	MaxTransactionLifetime inter.Timestamp

	// MaxAuthorityDepth bounds recursion when evaluating delegated
	// authorities.
	MaxAuthorityDepth uint16

	// MaxBlockSize is the hard limit on a serialized block.
	MaxBlockSize uint64

	// FixedBandwidthOverheadPerTransaction is added to every transaction's
	// packed size when charging bandwidth.
	FixedBandwidthOverheadPerTransaction uint64
}

// BlocksRules defines block production timing and the producer round
// discipline.
type BlocksRules struct {
	// Interval is the slot length. Slot 1 is genesis time plus one
	// interval; every block occupies exactly one slot.
	Interval inter.Timestamp

	// ProducerRepetitions is how many consecutive slots each scheduled
	// producer produces before the round advances to the next one.
	ProducerRepetitions uint32

	// MaxProducers caps the number of producers elected into a schedule.
	MaxProducers uint32

	// IrreversibleThresholdPercent is the fraction of active producers (in
	// Percent100 fixed point) that must have confirmed past a block number
	// for it to become final.
	IrreversibleThresholdPercent uint32
}

// Rules describes the complete configuration of a dawn network deployment.
type Rules struct {
	Name      string
	NetworkID uint64

	Blocks BlocksRules
	Chain  ChainConfig

	// EnforceBandwidthLimits gates the stake-vs-usage bandwidth check.
	// Accounting happens regardless; only the rejection is optional.
	EnforceBandwidthLimits bool

	// PruneExpiredTransactions gates removal of expired entries from the
	// transaction dedup index. Off by default: entries are kept until the
	// pruning policy is proven safe across forking windows.
	PruneExpiredTransactions bool
}

// BlocksPerRound returns the number of slots in one round for a schedule of
// the given size. The producer schedule can change only at multiples of
// this value.
func (r Rules) BlocksPerRound(scheduleSize int) uint32 {
	if scheduleSize <= 0 {
		scheduleSize = 1
	}
	return uint32(scheduleSize) * r.Blocks.ProducerRepetitions
}

// IsStartOfRound reports whether blockNum sits on a round boundary for a
// schedule of the given size.
func (r Rules) IsStartOfRound(blockNum uint32, scheduleSize int) bool {
	return blockNum%r.BlocksPerRound(scheduleSize) == 0
}

// DefaultChainConfig returns the chain configuration shared by all
// networks.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		MaxTransactionLifetime:               inter.Timestamp(1 * time.Hour),
		MaxAuthorityDepth:                    6,
		MaxBlockSize:                         1024 * 1024,
		FixedBandwidthOverheadPerTransaction: 100,
	}
}

// MainNetRules returns the production network configuration.
func MainNetRules() Rules {
	return Rules{
		Name:      "main",
		NetworkID: MainNetworkID,
		Blocks: BlocksRules{
			Interval:                     inter.Timestamp(500 * time.Millisecond),
			ProducerRepetitions:          1,
			MaxProducers:                 21,
			IrreversibleThresholdPercent: Percent(70),
		},
		Chain: DefaultChainConfig(),
	}
}

// TestNetRules returns the testnet configuration. Testnet mirrors mainnet
// parameters for realistic testing.
func TestNetRules() Rules {
	cfg := MainNetRules()
	cfg.Name = "test"
	cfg.NetworkID = TestNetworkID
	return cfg
}

// FakeNetRules returns the configuration for local/fake networks: the
// mainnet parameters under the fake network's name and network id.
func FakeNetRules() Rules {
	cfg := MainNetRules()
	cfg.Name = "fake"
	cfg.NetworkID = FakeNetworkID
	return cfg
}

// Copy returns a deep copy of the Rules.
func (r Rules) Copy() Rules {
	return r
}

// String returns a JSON representation for debugging and logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
