package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Transaction type codes used on the wire between extraction stages.
const (
	TypeWithdrawal = "W"
	TypeDeposit    = "D"
)

// Amount is a decimal amount as emitted by the model. Models occasionally
// return amounts as quoted strings ("500.00") or garbage; anything that does
// not parse as a number decodes to 0 so a single bad field never drops a row.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*a = 0
		return nil
	}
	*a = Amount(f)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(a))
}

// Reference is an optional bank reference or cheque number. Accepts string,
// number or null on the wire.
type Reference struct {
	Value string
	Valid bool
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*r = Reference{}
		return nil
	}
	if bytes.HasPrefix(data, []byte(`"`)) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			*r = Reference{}
			return nil
		}
		*r = Reference{Value: v, Valid: v != ""}
		return nil
	}
	// Numeric reference IDs are kept as their literal text.
	*r = Reference{Value: s, Valid: true}
	return nil
}

func (r Reference) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// Record is the compact transaction shape moved between the extraction,
// sanitization and reconciliation stages. Field keys match the schema
// template sent to the model.
type Record struct {
	Date        string    `json:"dt"`
	Description string    `json:"desc"`
	Reference   Reference `json:"ref"`
	Debit       Amount    `json:"dr"`
	Credit      Amount    `json:"cr"`
	Balance     Amount    `json:"bal"`
	Type        string    `json:"type"`
}

// DisplayRecord is the expanded form handed to the export layer.
type DisplayRecord struct {
	Date            string  `json:"date" csv:"date"`
	Narration       string  `json:"narration" csv:"narration"`
	ReferenceNumber string  `json:"reference_number" csv:"reference_number"`
	WithdrawalDR    float64 `json:"withdrawal_dr" csv:"withdrawal_dr"`
	DepositCR       float64 `json:"deposit_cr" csv:"deposit_cr"`
	Balance         float64 `json:"balance" csv:"balance"`
	TransactionType string  `json:"transaction_type" csv:"transaction_type"`
}

// Expand maps compact records to display records. Pure function: no I/O and
// no failure modes; calling it twice on the same input yields identical output.
func Expand(records []Record) []DisplayRecord {
	out := make([]DisplayRecord, 0, len(records))
	for _, r := range records {
		txnType := "Deposit"
		if strings.EqualFold(strings.TrimSpace(r.Type), TypeWithdrawal) ||
			strings.EqualFold(strings.TrimSpace(r.Type), "Withdrawal") {
			txnType = "Withdrawal"
		}
		ref := ""
		if r.Reference.Valid {
			ref = r.Reference.Value
		}
		out = append(out, DisplayRecord{
			Date:            r.Date,
			Narration:       r.Description,
			ReferenceNumber: ref,
			WithdrawalDR:    float64(r.Debit),
			DepositCR:       float64(r.Credit),
			Balance:         float64(r.Balance),
			TransactionType: txnType,
		})
	}
	return out
}
