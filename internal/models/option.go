// Package models provides the option quote records and the run state machine
// shared by the collector packages.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequiredOptionFields lists the contract keys a raw option must carry to be stored.
var RequiredOptionFields = []string{
	"symbol",
	"root_symbol",
	"option_type",
	"strike",
	"expiration_date",
	"bid",
	"ask",
	"bidsize",
	"asksize",
}

// Option represents an option contract from the Tradier chains endpoint.
type Option struct {
	Symbol         string  `json:"symbol"`
	RootSymbol     string  `json:"root_symbol"`
	OptionType     string  `json:"option_type"`
	Strike         float64 `json:"strike"`
	ExpirationDate string  `json:"expiration_date"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	BidSize        int     `json:"bidsize"`
	AskSize        int     `json:"asksize"`

	// missing holds required keys that were absent or null in the payload
	missing []string
}

// UnmarshalJSON decodes the contract and records which required keys were absent.
// A key whose value is null counts as absent, since the store columns are NOT NULL.
func (o *Option) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	type plainOption Option
	var p plainOption
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*o = Option(p)
	o.missing = nil

	for _, key := range RequiredOptionFields {
		raw, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			o.missing = append(o.missing, key)
		}
	}
	return nil
}

// Missing returns the required keys the decoded payload did not provide.
func (o *Option) Missing() []string {
	return o.missing
}

// OptionRow is one persisted point-in-time quote. Rows are append-only and keyed
// by (symbol, quote_timestamp).
type OptionRow struct {
	Symbol         string  `xorm:"pk notnull 'symbol' TEXT"`
	RootSymbol     string  `xorm:"notnull 'root_symbol' TEXT"`
	OptionType     string  `xorm:"notnull 'option_type' TEXT"`
	Strike         float64 `xorm:"notnull 'strike' REAL"`
	Expiration     string  `xorm:"notnull 'expiration' TEXT"`
	QuoteTimestamp string  `xorm:"pk notnull 'quote_timestamp' TEXT"`
	Bid            float64 `xorm:"notnull 'bid' REAL"`
	Ask            float64 `xorm:"notnull 'ask' REAL"`
	BidSize        int     `xorm:"notnull 'bidsize' INTEGER"`
	AskSize        int     `xorm:"notnull 'asksize' INTEGER"`
}

// TableName maps OptionRow to the options table.
func (OptionRow) TableName() string {
	return "options"
}

// String renders the row as a tuple, the format used in status emails.
func (r OptionRow) String() string {
	return fmt.Sprintf("(%q, %q, %q, %s, %q, %q, %s, %s, %d, %d)",
		r.Symbol, r.RootSymbol, r.OptionType,
		formatFloat(r.Strike), r.Expiration, r.QuoteTimestamp,
		formatFloat(r.Bid), formatFloat(r.Ask),
		r.BidSize, r.AskSize)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
