package validate

import (
	"math"
	"math/big"
	"net/mail"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// KeyMinLength is the minimum length of an encoded account or secret key.
	KeyMinLength = 56

	// SecretKeyPrefix is the sentinel character every secret key starts with.
	SecretKeyPrefix = "S"

	// PublicKeyPrefix is the sentinel character every account address starts with.
	PublicKeyPrefix = "G"

	// MemoMaxLength is the number of characters a transaction memo may hold.
	MemoMaxLength = 28
)

// RecoveryPhraseLengths lists the accepted recovery phrase word counts.
var RecoveryPhraseLengths = []int{12, 24} //nolint:gochecknoglobals

// Field names shared by the wallet import checks.
const (
	FieldImportMethod = "importMethod"
	FieldSecretKey    = "secretKey"
	FieldSeedPhrase   = "seedPhrase"

	ImportMethodSecret = "secret"
	ImportMethodSeed   = "seed"
)

const invalidCredentialsMessage = "Invalid wallet credentials. Please check your secret key or seed phrase and try again."

// Func checks a set of fields. A nil return means the fields are acceptable.
type Func func(fields map[string]string) error

// Funds describes what a wallet can spend: the available balance and the flat fee added to every
// transfer.
type Funds struct {
	Balance float64
	Fee     float64
}

// All runs each check in order and returns the first rejection.
func All(funcs ...Func) Func {
	return func(fields map[string]string) error {
		for _, f := range funcs {
			if f == nil {
				continue
			}

			if err := f(fields); err != nil {
				return err
			}
		}

		return nil
	}
}

// CheckSecretKey accepts a non-empty key that starts with SecretKeyPrefix and is at least
// KeyMinLength characters long.
func CheckSecretKey(field, value string) error {
	value = strings.TrimSpace(value)

	switch {
	case value == "":
		return observe("secret_key", Reject(field, ReasonMalformedSecretKey, "Please enter your secret key"))
	case !strings.HasPrefix(value, SecretKeyPrefix), len(value) < KeyMinLength:
		return observe("secret_key", Reject(field, ReasonMalformedSecretKey, invalidCredentialsMessage))
	}

	return observe("secret_key", nil)
}

// CheckRecoveryPhrase accepts a phrase whose whitespace-separated word count is one of
// RecoveryPhraseLengths.
func CheckRecoveryPhrase(field, value string) error {
	words := strings.Fields(value)

	if len(words) == 0 {
		return observe("recovery_phrase",
			Reject(field, ReasonMalformedRecoveryPhrase, "Please enter your seed phrase"))
	}

	if !slices.Contains(RecoveryPhraseLengths, len(words)) {
		return observe("recovery_phrase",
			Reject(field, ReasonMalformedRecoveryPhrase, invalidCredentialsMessage))
	}

	return observe("recovery_phrase", nil)
}

// CheckPublicKey accepts an account address: PublicKeyPrefix followed by enough characters to
// reach KeyMinLength.
func CheckPublicKey(field, value string) error {
	value = strings.TrimSpace(value)

	if !strings.HasPrefix(value, PublicKeyPrefix) || len(value) < KeyMinLength {
		return observe("public_key",
			Reject(field, ReasonMalformedPublicKey, "Enter the destination wallet address"))
	}

	return observe("public_key", nil)
}

// CheckAmount accepts a positive finite number that, together with the fee, fits in the balance.
// The comparison is done on exact decimals so 125.059875 + 0.000125 fits a 125.06 balance.
func CheckAmount(field, value string, funds Funds) error {
	value = strings.TrimSpace(value)

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed <= 0 {
		return observe("amount", Reject(field, ReasonInvalidAmount, "Enter an amount greater than zero"))
	}

	total := new(big.Rat).Add(exact(value, parsed), exactFloat(funds.Fee))
	if total.Cmp(exactFloat(funds.Balance)) > 0 {
		return observe("amount",
			Reject(field, ReasonInsufficientFunds, "Amount plus fee exceeds the available balance"))
	}

	return observe("amount", nil)
}

// CheckEmail accepts anything net/mail can parse as a single address.
func CheckEmail(field, value string) error {
	value = strings.TrimSpace(value)

	if value == "" {
		return observe("email", Reject(field, ReasonInvalidEmail, "Please enter your email address"))
	}

	if _, err := mail.ParseAddress(value); err != nil {
		return observe("email", Reject(field, ReasonInvalidEmail, "Please enter a valid email address"))
	}

	return observe("email", nil)
}

// CheckOneOf accepts a value from the allowed set.
func CheckOneOf(field, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return observe("one_of",
			Reject(field, ReasonInvalidChoice, "Choose one of: "+strings.Join(allowed, ", ")))
	}

	return observe("one_of", nil)
}

// CheckRequired accepts any value that is not blank.
func CheckRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return observe("required", Reject(field, ReasonRequired, "This field is required"))
	}

	return observe("required", nil)
}

// Memo normalizes a memo and cuts it to MemoMaxLength characters. It never rejects; the returned
// length drives the "n/28 characters" counter.
func Memo(value string) (string, int) {
	runes := []rune(norm.NFC.String(value))
	if len(runes) > MemoMaxLength {
		runes = runes[:MemoMaxLength]
	}

	return string(runes), len(runes)
}

// SecretKey checks the named field with CheckSecretKey.
func SecretKey(field string) Func {
	return func(fields map[string]string) error {
		return CheckSecretKey(field, fields[field])
	}
}

// RecoveryPhrase checks the named field with CheckRecoveryPhrase.
func RecoveryPhrase(field string) Func {
	return func(fields map[string]string) error {
		return CheckRecoveryPhrase(field, fields[field])
	}
}

// PublicKey checks the named field with CheckPublicKey.
func PublicKey(field string) Func {
	return func(fields map[string]string) error {
		return CheckPublicKey(field, fields[field])
	}
}

// Amount checks the named field with CheckAmount against funds.
func Amount(field string, funds Funds) Func {
	return func(fields map[string]string) error {
		return CheckAmount(field, fields[field], funds)
	}
}

// Email checks the named field with CheckEmail.
func Email(field string) Func {
	return func(fields map[string]string) error {
		return CheckEmail(field, fields[field])
	}
}

// OneOf checks the named field with CheckOneOf.
func OneOf(field string, allowed ...string) Func {
	return func(fields map[string]string) error {
		return CheckOneOf(field, fields[field], allowed...)
	}
}

// Required checks the named field with CheckRequired.
func Required(field string) Func {
	return func(fields map[string]string) error {
		return CheckRequired(field, fields[field])
	}
}

// WalletCredentials checks the secret key or the recovery phrase depending on the import method.
// An unset method means a secret key import.
func WalletCredentials(methodField, secretField, phraseField string) Func {
	return func(fields map[string]string) error {
		switch method := fields[methodField]; method {
		case "", ImportMethodSecret:
			return CheckSecretKey(secretField, fields[secretField])
		case ImportMethodSeed:
			return CheckRecoveryPhrase(phraseField, fields[phraseField])
		default:
			return CheckOneOf(methodField, method, ImportMethodSecret, ImportMethodSeed)
		}
	}
}

func exact(text string, parsed float64) *big.Rat {
	if r, ok := new(big.Rat).SetString(text); ok {
		return r
	}

	return new(big.Rat).SetFloat64(parsed)
}

func exactFloat(f float64) *big.Rat {
	return exact(strconv.FormatFloat(f, 'f', -1, 64), f)
}
