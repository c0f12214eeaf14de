package chain

// SkipFlags select validation steps to bypass, e.g. while replaying blocks
// the node itself finalized earlier.
type SkipFlags uint32

// SkipNothing performs full validation.
const SkipNothing SkipFlags = 0

const (
	SkipProducerSignature     SkipFlags = 1 << iota // used while reindexing
	SkipTransactionSignatures                       // used by non-producer nodes
	SkipTransactionDupeCheck                        // used while reindexing
	SkipTaposCheck                                  // used while reindexing
	SkipMerkleCheck                                 // used while reindexing
	SkipForkDB                                      // used while reindexing
	SkipAuthorityCheck                              // removes the check for a transaction's minimum permission
	SkipProducerScheduleCheck                       // used while reindexing
	SkipScopeCheck                                  // used to relax structural scope validation
	SkipBlockSizeCheck                              // used when a producer pushes its own oversized transaction
	ReceivedBlock                                   // the block was received from the network

	// SkipEverything bypasses all optional verification; applied below the
	// latest checkpoint.
	SkipEverything SkipFlags = ^SkipFlags(0)
)

// Has reports whether all the given flags are set.
func (f SkipFlags) Has(flags SkipFlags) bool {
	return f&flags == flags
}

// withSkipFlags replaces the controller's skip mask for the duration of fn
// and restores the prior mask on all exit paths. Nested overrides use
// assignment semantics: the inner value replaces, it is not OR-ed.
func (c *Controller) withSkipFlags(flags SkipFlags, fn func() error) error {
	old := c.skipFlags
	c.skipFlags = flags
	defer func() {
		c.skipFlags = old
	}()
	return fn()
}
