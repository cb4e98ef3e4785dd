// Package simulator is the practice wallet behind the transaction simulator flow. Nothing leaves
// the process: submitting produces a confirmed receipt after a simulated network delay.
package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/validate"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ActionSubmit is the collaborator that confirms a transfer.
const ActionSubmit = "submit"

// Field names of the transfer form.
const (
	FieldRecipient = "recipient"
	FieldAmount    = "amount"
	FieldMemo      = "memo"
)

// StatusConfirmed is the only status a simulated transfer ends in.
const StatusConfirmed = "Confirmed"

// Defaults of the practice wallet.
const (
	DefaultBalance = 125.06
	DefaultFee     = 0.000125
	DefaultRate    = 0.125
	DefaultLatency = 3 * time.Second
)

var ErrInvalidRate = errors.New("exchange rate must be positive")

// Wallet is the practice account a session spends from. Rate is the dollar value of one unit.
type Wallet struct {
	Address string
	Balance float64
	Fee     float64
	Rate    float64
}

// DefaultWallet returns the wallet every simulator session starts with.
func DefaultWallet() Wallet {
	return Wallet{
		Address: "GDEMO" + strings.Repeat("SIMULATEDWALLET", 4)[:validate.KeyMinLength-5],
		Balance: DefaultBalance,
		Fee:     DefaultFee,
		Rate:    DefaultRate,
	}
}

// Funds is what the amount guard checks against.
func (w Wallet) Funds() validate.Funds {
	return validate.Funds{Balance: w.Balance, Fee: w.Fee}
}

// Receipt describes a confirmed transfer.
type Receipt struct {
	TransactionID string  `json:"transactionId"`
	Hash          string  `json:"hash"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Amount        float64 `json:"amount"`
	Fee           float64 `json:"fee"`
	Total         float64 `json:"total"`
	NewBalance    float64 `json:"newBalance"`
	Units         float64 `json:"units"`
	Memo          string  `json:"memo,omitempty"`
	Status        string  `json:"status"`
	SubmittedAt   string  `json:"submittedAt"`

	Display Display `json:"display"`
}

// Display holds the receipt amounts formatted for the screen.
type Display struct {
	Amount     string `json:"amount"`
	Fee        string `json:"fee"`
	Total      string `json:"total"`
	NewBalance string `json:"newBalance"`
	Units      string `json:"units"`
}

var printer = message.NewPrinter(language.AmericanEnglish) //nolint:gochecknoglobals

func dollars(v float64) string {
	return printer.Sprintf("$%.2f", v)
}

func dollarsPrecise(v float64) string {
	return printer.Sprintf("$%.6f", v)
}

// NewReceipt prices a transfer of amount to recipient. It does not check funds.
func (w Wallet) NewReceipt(recipient string, amount float64, memo string, at time.Time) (Receipt, error) {
	if w.Rate <= 0 {
		return Receipt{}, ErrInvalidRate
	}

	memo, _ = validate.Memo(memo)
	id := ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy())

	total := amount + w.Fee
	newBalance := w.Balance - total
	units := amount / w.Rate

	sum := sha256.Sum256([]byte(id.String() + "|" + w.Address + "|" + recipient + "|" +
		strconv.FormatFloat(amount, 'f', -1, 64) + "|" + memo))

	return Receipt{
		TransactionID: id.String(),
		Hash:          hex.EncodeToString(sum[:]),
		From:          w.Address,
		To:            strings.TrimSpace(recipient),
		Amount:        amount,
		Fee:           w.Fee,
		Total:         total,
		NewBalance:    newBalance,
		Units:         units,
		Memo:          memo,
		Status:        StatusConfirmed,
		SubmittedAt:   at.UTC().Format(time.RFC3339),
		Display: Display{
			Amount:     dollars(amount),
			Fee:        dollarsPrecise(w.Fee),
			Total:      dollarsPrecise(total),
			NewBalance: dollars(newBalance),
			Units:      printer.Sprintf("%.6f", units),
		},
	}, nil
}

// Payload flattens the receipt for an action result.
func (r Receipt) Payload() map[string]any {
	return map[string]any{
		"transactionId": r.TransactionID,
		"hash":          r.Hash,
		"from":          r.From,
		"to":            r.To,
		"amount":        r.Amount,
		"fee":           r.Fee,
		"total":         r.Total,
		"newBalance":    r.NewBalance,
		"units":         r.Units,
		"memo":          r.Memo,
		"status":        r.Status,
		"submittedAt":   r.SubmittedAt,
		"display": map[string]any{
			"amount":     r.Display.Amount,
			"fee":        r.Display.Fee,
			"total":      r.Display.Total,
			"newBalance": r.Display.NewBalance,
			"units":      r.Display.Units,
		},
	}
}

// Submitter confirms transfers from a wallet.
type Submitter struct {
	Wallet  Wallet
	Latency time.Duration
	Now     func() time.Time
}

// Action returns the submit collaborator.
func (s Submitter) Action() statemachine.Action {
	return statemachine.NewAction(ActionSubmit, s.submit)
}

func (s Submitter) submit(ctx context.Context, fields statemachine.Fields) (map[string]any, error) {
	err := statemachine.Sleep(ctx, s.Latency)
	if err != nil {
		return nil, err
	}

	// Fields can change after review.
	check := validate.All(
		validate.PublicKey(FieldRecipient),
		validate.Amount(FieldAmount, s.Wallet.Funds()),
	)
	if err := check(fields); err != nil {
		var verr *validate.ValidationError
		if errors.As(err, &verr) {
			return nil, statemachine.Fail(string(verr.Reason), verr.Message)
		}

		return nil, err
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(fields[FieldAmount]), 64)
	if err != nil {
		return nil, statemachine.Fail(string(validate.ReasonInvalidAmount), "Enter an amount greater than zero")
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	receipt, err := s.Wallet.NewReceipt(fields[FieldRecipient], amount, fields[FieldMemo], now())
	if err != nil {
		return nil, err
	}

	return receipt.Payload(), nil
}
