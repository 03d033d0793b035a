package fee

import (
	"math"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

// OtherFee is an operation-specific charge, such as a deposit or a close
// adjustment. NativeAmount is its value in lamports and is what Total counts.
type OtherFee struct {
	Label        string           `json:"label"`
	Mint         solana.PublicKey `json:"mint"`
	Amount       uint64           `json:"amount"`
	NativeAmount uint64           `json:"native_amount"`
}

// Amount is the fee of one relayed operation, in lamports
type Amount struct {
	TransactionFee     uint64     `json:"transaction_fee"`
	AccountCreationFee uint64     `json:"account_creation_fee"`
	OtherFees          []OtherFee `json:"other_fees,omitempty"`
	Subsidized         bool       `json:"subsidized"` // Transaction fee waived by the free tier
}

// Total sums every component. It saturates at MaxUint64 instead of wrapping.
func (a Amount) Total() uint64 {
	total := saturatingAdd(a.TransactionFee, a.AccountCreationFee)
	for _, f := range a.OtherFees {
		total = saturatingAdd(total, f.NativeAmount)
	}
	return total
}

// IsZero reports whether nothing is owed
func (a Amount) IsZero() bool {
	return a.Total() == 0
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
