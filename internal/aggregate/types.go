// Package aggregate implements the aggregation engine: it fans out over
// every (entity type, email field) combination that could match a customer
// email, deduplicates what comes back, resolves contact phones in bulk, and
// merges everything into one provenance-tagged result set.
package aggregate

import (
	"github.com/economy-energy/crm-aggregator/internal/config"
	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

// DataType labels which entity category a merged record came from. It is
// assigned by the orchestrator, never by the remote.
type DataType string

const (
	TypeLead       DataType = "LEAD"
	TypeDeal       DataType = "DEAL"
	TypeDealsUsina DataType = "DEALS_USINA"
)

// Predicate is one (field, value) filter condition matching the customer
// email against a possibly-renamed schema field.
type Predicate struct {
	Field string
	Value string
}

// EntityQuery describes how one entity category is fetched: which list
// method, which email fields may hold the search key, any fixed extra
// filter, and the fields to select.
type EntityQuery struct {
	DataType    DataType
	Method      string
	EmailFields []string
	Filter      map[string]any
	Select      []string
}

// predicates binds the query's email fields to a concrete search value.
func (q EntityQuery) predicates(email string) []Predicate {
	preds := make([]Predicate, len(q.EmailFields))
	for i, f := range q.EmailFields {
		preds[i] = Predicate{Field: f, Value: email}
	}
	return preds
}

// leadSelect and dealSelect mirror the field lists the service has always
// requested from the remote.
var (
	leadSelect = []string{
		"ID", "OPPORTUNITY", "STATUS_ID", "TITLE", "DATE_CREATE",
		"CONTACT_ID", "PHONE",
		"UF_CRM_1717008267006", "UF_CRM_1716238809742", "UF_CRM_1721931621996",
	}
	dealSelect = []string{
		"ID", "PHONE", "CATEGORY_ID", "OPPORTUNITY", "STAGE_ID", "TITLE",
		"DATE_CREATE", "CONTACT_ID",
		"UF_CRM_6657792586A0F", "UF_CRM_1716235306165", "UF_CRM_1709207938786",
		"UF_CRM_664BBA75E0765", "UF_CRM_1709060681601", "UF_CRM_1716236663328",
		"UF_CRM_1716235986482",
	}
)

// Queries builds the three entity queries from configuration.
func Queries(cfg config.AggregateConfig) []EntityQuery {
	return []EntityQuery{
		{
			DataType:    TypeLead,
			Method:      "crm.lead.list",
			EmailFields: cfg.LeadEmailFields,
			Select:      leadSelect,
		},
		{
			DataType:    TypeDeal,
			Method:      "crm.deal.list",
			EmailFields: []string{cfg.DealEmailField},
			Select:      dealSelect,
		},
		{
			DataType:    TypeDealsUsina,
			Method:      "crm.deal.list",
			EmailFields: []string{cfg.UsinaEmailField},
			Filter:      map[string]any{"CATEGORY_ID": cfg.UsinaCategoryID},
			Select:      dealSelect,
		},
	}
}

// PhoneTable maps contact ID to phone value. A present key with an empty
// value means the contact was resolved and has no phone; an absent key means
// resolution was never attempted or failed for that contact.
type PhoneTable map[string]string

// Lookup returns the phone for a contact and whether the contact was
// resolved at all.
func (t PhoneTable) Lookup(contactID string) (string, bool) {
	phone, ok := t[contactID]
	return phone, ok
}

// Result is the terminal output of one aggregation run.
type Result struct {
	RunID   string           `json:"run_id"`
	Records []bitrix.Record  `json:"data"`
	Counts  map[DataType]int `json:"counts"`
	Total   int              `json:"total"`

	// Partial lists the predicate and chunk failures that degraded this
	// run to fewer results. Empty means every fetch completed.
	Partial []string `json:"partial,omitempty"`
}
