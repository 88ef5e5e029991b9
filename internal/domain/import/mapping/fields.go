// Package mapping describes how source columns map onto the transaction schema
// and resolves a mapping configuration (manual or template) into one set of
// settings that row processing can use.
package mapping

import (
	"sort"
	"strings"
)

// Field is a logical transaction field a source column can be mapped to.
type Field string

const (
	FieldDate              Field = "date"
	FieldAmount            Field = "amount"
	FieldCurrency          Field = "currency"
	FieldType              Field = "type"
	FieldDescription       Field = "description"
	FieldCategory          Field = "category"
	FieldAccount           Field = "account"
	FieldVendor            Field = "vendor"
	FieldClient            Field = "client"
	FieldNotes             Field = "notes"
	FieldTags              Field = "tags"
	FieldSecondaryAmount   Field = "secondaryAmount"
	FieldSecondaryCurrency Field = "secondaryCurrency"
	FieldDocument          Field = "document"
)

// AllFields lists every mappable field in display order.
var AllFields = []Field{
	FieldDate, FieldAmount, FieldCurrency, FieldType, FieldDescription,
	FieldCategory, FieldAccount, FieldVendor, FieldClient, FieldNotes,
	FieldTags, FieldSecondaryAmount, FieldSecondaryCurrency, FieldDocument,
}

// Known reports whether f is one of AllFields.
func (f Field) Known() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// RequiredFields returns the fields that must be mapped for mode.
func RequiredFields(mode DirectionMode) []Field {
	required := []Field{FieldDate, FieldAmount, FieldCurrency, FieldDescription, FieldCategory, FieldAccount}
	if mode == DirectionTypeColumn {
		required = append(required, FieldType)
	}
	return required
}

// ColumnMapping maps a field to a source header. Missing or empty entries
// are unmapped.
type ColumnMapping map[Field]string

// Header returns the trimmed header mapped to f.
func (m ColumnMapping) Header(f Field) (string, bool) {
	h := strings.TrimSpace(m[f])
	return h, h != ""
}

// Clone returns an independent copy with empty entries dropped.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for f, h := range m {
		if h = strings.TrimSpace(h); h != "" {
			out[f] = h
		}
	}
	return out
}

// Missing returns the required fields for mode that are not mapped.
func (m ColumnMapping) Missing(mode DirectionMode) []Field {
	var missing []Field
	for _, f := range RequiredFields(mode) {
		if _, ok := m.Header(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// UnknownFields returns mapping keys that are not recognized fields.
func (m ColumnMapping) UnknownFields() []string {
	var unknown []string
	for f := range m {
		if !f.Known() {
			unknown = append(unknown, string(f))
		}
	}
	sort.Strings(unknown)
	return unknown
}

// DefaultHeaders is the header row of the downloadable sample file. A file
// that keeps these headers maps with DefaultMapping.
var DefaultHeaders = map[Field]string{
	FieldDate:              "Date",
	FieldType:              "Type",
	FieldAmount:            "Amount",
	FieldCurrency:          "Currency",
	FieldDescription:       "Description",
	FieldCategory:          "Category",
	FieldAccount:           "Account",
	FieldVendor:            "Vendor",
	FieldClient:            "Client",
	FieldNotes:             "Notes",
	FieldTags:              "Tags",
	FieldSecondaryAmount:   "Secondary Amount",
	FieldSecondaryCurrency: "Secondary Currency",
	FieldDocument:          "Document",
}

// DefaultMapping returns the mapping matching DefaultHeaders.
func DefaultMapping() ColumnMapping {
	m := make(ColumnMapping, len(DefaultHeaders))
	for f, h := range DefaultHeaders {
		m[f] = h
	}
	return m
}

func fieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return names
}
