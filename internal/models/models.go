package models

import "sort"

// Collection and document names used by the admin tools
const (
	UsersCollection   = "users"
	ClientsCollection = "clients"
	ConfigCollection  = "config"
	ListsConfigDoc    = "lists"
	MenuConfigDoc     = "menu"
)

// Field names on user records
const (
	FieldEmail        = "email"
	FieldClientAccess = "clientAccess"
)

// User represents a user record in the users collection.
// The document ID is either the opaque auth UID or, for records written
// before the UID migration, the legacy email key.
type User struct {
	ID           string                 `json:"id" firestore:"-"`
	Email        string                 `json:"email" firestore:"email"`
	ClientAccess map[string]interface{} `json:"clientAccess" firestore:"clientAccess"`
}

// UserFromData reads the fields the admin tools care about out of a raw
// document payload. Unknown fields are ignored; the payload itself is never
// rewritten through this type.
func UserFromData(id string, data map[string]interface{}) User {
	u := User{ID: id}
	if email, ok := data[FieldEmail].(string); ok {
		u.Email = email
	}
	if access, ok := data[FieldClientAccess].(map[string]interface{}); ok {
		u.ClientAccess = access
	}
	return u
}

// ClientIDs returns the sorted clientAccess keys
func (u User) ClientIDs() []string {
	ids := make([]string, 0, len(u.ClientAccess))
	for id := range u.ClientAccess {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TenantConfigCollection returns the config subcollection path of a tenant
func TenantConfigCollection(tenantID string) string {
	return ClientsCollection + "/" + tenantID + "/" + ConfigCollection
}

// ListToggles maps a list-management feature name to its enabled state
type ListToggles map[string]bool

// List-management feature toggles
const (
	ToggleVendor   = "vendor"
	ToggleCategory = "category"
	ToggleMethod   = "method"
	ToggleUnit     = "unit"
)

// Names returns the toggle names in sorted order
func (t ListToggles) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Data converts the toggles into a document payload
func (t ListToggles) Data() map[string]interface{} {
	data := make(map[string]interface{}, len(t))
	for name, enabled := range t {
		data[name] = enabled
	}
	return data
}

// ListTogglesFromData reads boolean fields out of a config document payload.
// Non-boolean fields are skipped.
func ListTogglesFromData(data map[string]interface{}) ListToggles {
	t := make(ListToggles, len(data))
	for name, v := range data {
		if enabled, ok := v.(bool); ok {
			t[name] = enabled
		}
	}
	return t
}
