package domain

import "strings"

// Identity names a participant: a seller, a buyer, the treasury owner, or
// the ledger's own escrow account. The ledger treats it as opaque.
type Identity string

func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) String() string {
	return string(i)
}
