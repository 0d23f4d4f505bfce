package payment

import "fmt"

// TransactionType is the cardholder-facing kind of a transaction.
type TransactionType int

const (
	Sale TransactionType = iota
	Refund
	PreAuth
	Authorization
	OfflineSale
	PreAuthCompletionOnline
	PreAuthCompletionOffline
	TcUpload
	QuasiCash
	InstalmentSale
	PreAuthCancellation
)

var transactionTypeNames = map[TransactionType]string{
	Sale:                     "SALE",
	Refund:                   "REFUND",
	PreAuth:                  "PREAUTH",
	Authorization:            "AUTHORIZATION",
	OfflineSale:              "OFFLINE_SALE",
	PreAuthCompletionOnline:  "PREAUTH_COMPLETION_ONLINE",
	PreAuthCompletionOffline: "PREAUTH_COMPLETION_OFFLINE",
	TcUpload:                 "TC_UPLOAD",
	QuasiCash:                "QUASI_CASH",
	InstalmentSale:           "INSTALMENT_SALE",
	PreAuthCancellation:      "PREAUTH_CANCELLATION",
}

func (t TransactionType) String() string {
	if s, ok := transactionTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TransactionType(%d)", int(t))
}

// IsPreAuthFamily reports whether the amount of the transaction is carried
// in the preauthorization amount rather than the base amount.
func (t TransactionType) IsPreAuthFamily() bool {
	return t == PreAuth || t == Authorization || t == PreAuthCancellation
}

// TransactionStatus is the local outcome of a transaction.
type TransactionStatus int

const (
	StatusInProgress TransactionStatus = iota
	StatusApproved
	StatusDeclined
	StatusNotAllowed
	StatusCancelled
	StatusCardBlocked
	StatusCardRemoved
	StatusCardError
	StatusTerminalError
	StatusReversed
	StatusToReverse
	StatusToAdvise
	StatusUnknownError
)

var statusNames = map[TransactionStatus]string{
	StatusInProgress:    "IN_PROGRESS",
	StatusApproved:      "APPROVED",
	StatusDeclined:      "DECLINED",
	StatusNotAllowed:    "NOT_ALLOWED",
	StatusCancelled:     "CANCELLED",
	StatusCardBlocked:   "CARD_BLOCKED",
	StatusCardRemoved:   "CARD_REMOVED_FROM_READER",
	StatusCardError:     "CARD_ERROR",
	StatusTerminalError: "TERMINAL_ERROR",
	StatusReversed:      "REVERSED",
	StatusToReverse:     "TO_REVERSE",
	StatusToAdvise:      "TO_ADVISE",
	StatusUnknownError:  "UNKNOWN_ERROR",
}

func (s TransactionStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("TransactionStatus(%d)", int(s))
}

// InProgressStatus marks a follow-up operation running on a stored transaction.
type InProgressStatus int

const (
	InProgressNone InProgressStatus = iota
	InProgressVoid
	InProgressCompletion
)

// EntryMode is how the card data was captured.
type EntryMode int

const (
	EntryUnknown EntryMode = iota
	EntryManual
	EntryMagstripe
	EntryChip
	EntryContactless
	EntryFallbackManual
	EntryFallbackMagstripe
)

var entryModeNames = map[EntryMode]string{
	EntryUnknown:           "UNKNOWN",
	EntryManual:            "MANUAL",
	EntryMagstripe:         "MAGSTRIPE",
	EntryChip:              "CHIP",
	EntryContactless:       "CONTACTLESS",
	EntryFallbackManual:    "FALLBACK_MANUAL",
	EntryFallbackMagstripe: "FALLBACK_MAGSTRIPE",
}

func (m EntryMode) String() string {
	if n, ok := entryModeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("EntryMode(%d)", int(m))
}

// ParseEntryMode is the inverse of EntryMode.String.
func ParseEntryMode(s string) (EntryMode, error) {
	for m, n := range entryModeNames {
		if n == s {
			return m, nil
		}
	}
	return EntryUnknown, fmt.Errorf("unknown entry mode %q", s)
}

// IsKeyed reports whether the PAN and expiry date were typed in and so
// travel in clear fields rather than inside track or chip data.
func (m EntryMode) IsKeyed() bool {
	return m == EntryManual || m == EntryFallbackManual
}

// ConditionCode is the POS condition under which the card was presented.
type ConditionCode int

const (
	ConditionNormal ConditionCode = iota
	ConditionPreAuth
	ConditionMoto
	ConditionMotoPreAuth
)

func (c ConditionCode) String() string {
	switch c {
	case ConditionNormal:
		return "NORMAL"
	case ConditionPreAuth:
		return "PREAUTH"
	case ConditionMoto:
		return "MOTO"
	case ConditionMotoPreAuth:
		return "MOTO_PREAUTH"
	}
	return fmt.Sprintf("ConditionCode(%d)", int(c))
}

// POSEntryMode renders DE22: PAN entry capability, entry method and PIN
// capability, one digit each.
func (m EntryMode) POSEntryMode() string {
	capability := byte('0')
	switch m {
	case EntryFallbackManual:
		capability = '8'
	case EntryFallbackMagstripe:
		capability = '9'
	}

	method := byte('0')
	switch m {
	case EntryChip:
		method = '5'
	case EntryMagstripe, EntryFallbackManual:
		method = '2'
	case EntryContactless:
		method = '9'
	case EntryManual:
		method = '1'
	}

	pin := byte('2')
	if m == EntryChip || m == EntryContactless {
		pin = '1'
	}
	return string([]byte{capability, method, pin})
}

// POSConditionCode renders DE25. The acquirers take "00" for every
// condition, mail and telephone orders included.
func (c ConditionCode) POSConditionCode() string { return "00" }
