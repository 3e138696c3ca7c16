// Package listing validates listing drafts and drives the listing
// endpoints.
package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rexlx/vexmarket/internal"
)

const (
	MaxTitle       = 128
	MaxDescription = 8000
	// MaxPriceCents is $10,000.00.
	MaxPriceCents = 1_000_000
)

// Conditions are the accepted item conditions in display order.
var Conditions = []string{"New", "Like new", "Good", "Used", "Poor", "Parts only", "N/A"}

// DeliveryTypes are the accepted delivery methods in display order.
var DeliveryTypes = []internal.DeliveryType{internal.DeliveryLocal, internal.DeliveryShipping, internal.DeliveryBoth}

var errPrecision = errors.New("too many decimal places")

// ParseCents reads a dollar amount with at most two decimals.
func ParseCents(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && len(frac) > 2 {
		return 0, errPrecision
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, err
	}
	// anything this large is over the limit anyway
	w = min(w, 1<<40)
	var f uint64
	if frac != "" {
		for len(frac) < 2 {
			frac += "0"
		}
		if f, err = strconv.ParseUint(frac, 10, 8); err != nil {
			return 0, err
		}
	}
	return int64(w*100 + f), nil
}

// FormatCents renders cents as a plain decimal, e.g. 1999 -> "19.99".
func FormatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}

// Form is the editable text part of a listing draft.
type Form struct {
	Title       string
	Description string
	Price       string
	Condition   string
	Type        internal.DeliveryType
}

// FormFromListing pre-fills a form for editing.
func FormFromListing(l internal.Listing) Form {
	price := l.Price.String()
	if c, err := ParseCents(price); err == nil {
		price = FormatCents(c)
	}
	return Form{
		Title:       l.Title,
		Description: l.Description,
		Price:       price,
		Condition:   l.Condition,
		Type:        l.Type,
	}
}

func validCondition(c string) bool {
	for _, v := range Conditions {
		if v == c {
			return true
		}
	}
	return false
}

func validType(t internal.DeliveryType) bool {
	for _, v := range DeliveryTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Problems lists every rule the form breaks, in display order. zip is the
// confirmed location; "" means none is set. Each field contributes at most
// one problem.
func (f Form) Problems(zip string) []string {
	var out []string

	switch n := utf8.RuneCountInString(f.Title); {
	case n == 0:
		out = append(out, "Title is required")
	case n > MaxTitle:
		out = append(out, "Title must be 128 characters or less")
	}

	switch n := utf8.RuneCountInString(f.Description); {
	case n == 0:
		out = append(out, "Description is required")
	case n > MaxDescription:
		out = append(out, "Description must be 8000 characters or less")
	}

	cents, err := ParseCents(f.Price)
	switch {
	case errors.Is(err, errPrecision):
		out = append(out, "Price can have at most two decimal places")
	case err != nil || cents <= 0:
		out = append(out, "Price must be greater than $0")
	case cents > MaxPriceCents:
		out = append(out, "Price must be less than $10,000.00")
	}

	if !validCondition(f.Condition) {
		out = append(out, "The condition is required")
	}
	if !validType(f.Type) {
		out = append(out, "A delivery method must be selected")
	}
	if zip == "" {
		out = append(out, "Location must be set")
	}
	return out
}

// Validate is Problems as an error.
func (f Form) Validate(zip string) error {
	if p := f.Problems(zip); len(p) > 0 {
		return &internal.ValidationError{Problems: p}
	}
	return nil
}

type payload struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Price       json.Number           `json:"price"`
	Condition   string                `json:"condition"`
	Type        internal.DeliveryType `json:"type"`
	Zip         int                   `json:"zip"`
}

// payload assumes Validate passed.
func (f Form) payload(zip string) payload {
	cents, _ := ParseCents(f.Price)
	z, _ := strconv.Atoi(zip)
	return payload{
		Title:       f.Title,
		Description: f.Description,
		Price:       json.Number(FormatCents(cents)),
		Condition:   f.Condition,
		Type:        f.Type,
		Zip:         z,
	}
}
