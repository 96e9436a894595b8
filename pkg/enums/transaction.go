package enums

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TransactionKindFund       TransactionKind = "fund"
	TransactionKindTransfer   TransactionKind = "transfer"
	TransactionKindWithdrawal TransactionKind = "withdrawal"
	TransactionKindRefund     TransactionKind = "refund"
	TransactionKindCredit     TransactionKind = "credit"
	TransactionKindCommission TransactionKind = "commission"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindFund,
	TransactionKindTransfer,
	TransactionKindWithdrawal,
	TransactionKindRefund,
	TransactionKindCredit,
	TransactionKindCommission,
}

func (k TransactionKind) String() string {
	return string(k)
}

func (k TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// TransactionStatus is pending until it moves, once, to a terminal state.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusFailed     TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusSuccessful,
	TransactionStatusFailed,
}

func (s TransactionStatus) String() string {
	return string(s)
}

func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccessful || s == TransactionStatusFailed
}
