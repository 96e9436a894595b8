package ledger

import (
	"strings"

	"github.com/google/uuid"
)

// Sentinel account identifiers for the non-wallet side of a movement.
const (
	EscrowAccount   = "escrow"
	ExternalAccount = "external"
	PlatformAccount = "platform"
)

// Reference prefixes. Deterministic references make a retried operation
// collide with its first attempt instead of applying twice.
const (
	PrefixFunding    = "FND"
	PrefixCheckout   = "CHK"
	PrefixRelease    = "REL"
	PrefixRefund     = "RFD"
	PrefixDispute    = "DSP"
	PrefixPayout     = "PO"
	PrefixCommission = "FEE"
	PrefixReversal   = "REV"
	suffixCredit     = "CR"
)

// NewReference returns a fresh random reference with the given prefix.
func NewReference(prefix string) string {
	return prefix + "-" + compactID(uuid.New())
}

// ReferenceFor derives a stable reference from an entity id.
func ReferenceFor(prefix string, id uuid.UUID, parts ...string) string {
	segments := append([]string{prefix, compactID(id)}, parts...)
	return strings.Join(segments, "-")
}

// CreditReference names the audit credit written when reference settles.
func CreditReference(reference string) string {
	return reference + "-" + suffixCredit
}

// NewVirtualAccount returns a fresh wallet account identifier.
func NewVirtualAccount() string {
	return "ESC" + compactID(uuid.New())[:16]
}

func compactID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}
