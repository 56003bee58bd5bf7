package ledger

import "context"

// EventHook receives notifications when chain lifecycle events occur.
// Multiple hooks may be registered via multiple WithEventHook calls. Hook
// methods run synchronously on the calling goroutine after the triggering
// operation has already committed; a hook error is logged and does not
// unwind the commit.
type EventHook interface {
	OnCellAppended(ctx context.Context, c Cell) error
	OnSimulation(ctx context.Context, outcome SimulationOutcome) error
}

// Verifier checks a cell's proof signature. When supplied via
// WithVerifier, it replaces the signer configured from
// LEDGER_SIGNING_PRIVATE_KEY / LEDGER_SIGNING_PUBLIC_KEY for
// the chain's append-time verification step.
type Verifier interface {
	Verify(c Cell) (bool, error)
}

// AnchorVerdict re-evaluates a case's disposition with a subset of fact
// components withdrawn, for counterfactual anchor detection (§4.10
// CTF-01..04). activeComponentIDs holds the components still considered
// present in that hypothetical; everything else is withdrawn.
type AnchorVerdict func(activeComponentIDs map[string]struct{}) (verdict string, err error)
