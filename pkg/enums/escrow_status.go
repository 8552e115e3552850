package enums

// EscrowStatus tracks funds held on behalf of a vendor.
type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
)

func (e EscrowStatus) String() string {
	return string(e)
}
