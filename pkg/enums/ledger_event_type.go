package enums

// LedgerEventType maps to the ledger_event_type enum in Postgres.
type LedgerEventType string

const (
	LedgerEventTypeEscrowHold    LedgerEventType = "escrow_hold"
	LedgerEventTypeEscrowRelease LedgerEventType = "escrow_release"
	LedgerEventTypeRefund        LedgerEventType = "refund"
)

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	switch t {
	case LedgerEventTypeEscrowHold, LedgerEventTypeEscrowRelease, LedgerEventTypeRefund:
		return true
	}
	return false
}
