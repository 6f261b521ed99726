package bitrix

import (
	"encoding/json"
	"strconv"
)

// Record is one CRM entity as returned by a list method. Bitrix serializes
// most scalar fields as strings, so values are kept loosely typed and read
// through the accessors below.
type Record map[string]any

// StringField returns the named field rendered as a string. Numeric JSON
// values are formatted without an exponent; missing or null fields return "".
func (r Record) StringField(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// ID returns the record's remote identifier as an integer. ok is false when
// the field is missing, empty, or not numeric.
func (r Record) ID() (int64, bool) {
	s := r.StringField("ID")
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ContactID returns the record's CONTACT_ID reference, or "" when absent.
// Bitrix uses "0" for unlinked records, which is treated as absent.
func (r Record) ContactID() string {
	s := r.StringField("CONTACT_ID")
	if s == "0" {
		return ""
	}
	return s
}

// ListQuery describes one filtered list fetch before pagination state is
// applied. Filter values follow the Bitrix convention: either a plain value
// for equality or a map like {">": 42} for operators.
type ListQuery struct {
	Filter map[string]any
	Select []string
}

// ListPage is one page of a list method response.
type ListPage struct {
	Records []Record
	// Next is the remote's continuation hint. Bitrix omits it
	// inconsistently, so it is advisory only; the short-page check is the
	// termination signal that is actually trusted.
	Next *int
}

// ListRequest is the wire shape of a list method call. The paginator builds
// these; callers normally start from a ListQuery instead.
type ListRequest struct {
	Order  map[string]string `json:"order"`
	Filter map[string]any    `json:"filter"`
	Select []string          `json:"select,omitempty"`
	Start  int               `json:"start"`
	Limit  int               `json:"limit"`
}

// batchRequest is the wire shape of the batch method.
type batchRequest struct {
	Halt int               `json:"halt"`
	Cmd  map[string]string `json:"cmd"`
}

// envelope is the common Bitrix REST response wrapper.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Next             *int            `json:"next,omitempty"`
	Total            int             `json:"total,omitempty"`
	Error            string          `json:"error,omitempty"`
	ErrorDescription string          `json:"error_description,omitempty"`
}

// batchResult is the nested result of a batch call. Per-command errors are
// reported alongside successful command results.
type batchResult struct {
	Result      map[string]json.RawMessage `json:"result"`
	ResultError map[string]string          `json:"result_error"`
}

// Contact is the subset of crm.contact.get used for phone resolution.
type Contact struct {
	ID    string         `json:"ID"`
	Phone []ContactPhone `json:"PHONE"`
}

// ContactPhone is one phone entry on a contact.
type ContactPhone struct {
	ID        string `json:"ID"`
	ValueType string `json:"VALUE_TYPE"`
	Value     string `json:"VALUE"`
}
