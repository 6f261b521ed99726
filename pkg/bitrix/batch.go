package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

// ContactGetCommand builds the batch command string for a single
// crm.contact.get call.
func ContactGetCommand(contactID string) string {
	return "crm.contact.get?" + url.Values{"id": {contactID}}.Encode()
}

// GetContacts resolves up to 50 contact IDs in one batch call. The returned
// map is keyed by contact ID; IDs whose command failed remotely are simply
// absent.
func GetContacts(ctx context.Context, c Client, contactIDs []string) (map[string]Contact, error) {
	if len(contactIDs) == 0 {
		return map[string]Contact{}, nil
	}

	commands := make(map[string]string, len(contactIDs))
	labels := make(map[string]string, len(contactIDs))
	for i, id := range contactIDs {
		label := fmt.Sprintf("contact_%d", i)
		commands[label] = ContactGetCommand(id)
		labels[label] = id
	}

	results, err := c.Batch(ctx, commands)
	if err != nil {
		return nil, eris.Wrap(err, "bitrix: get contacts")
	}

	contacts := make(map[string]Contact, len(results))
	for label, raw := range results {
		id, ok := labels[label]
		if !ok {
			continue
		}
		var contact Contact
		if err := json.Unmarshal(raw, &contact); err != nil {
			// One undecodable contact leaves that ID unresolved; the rest
			// of the batch is still usable.
			continue
		}
		contacts[id] = contact
	}
	return contacts, nil
}

// FirstPhone returns the contact's first phone value, or "" if the contact
// has none.
func (c Contact) FirstPhone() string {
	if len(c.Phone) == 0 {
		return ""
	}
	return c.Phone[0].Value
}
