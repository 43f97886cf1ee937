package users

import (
	"fmt"
	"strings"
)

// LookupField names a column that resolves an external identifier to a user
type LookupField string

const (
	LookupID       LookupField = "id"
	LookupUsername LookupField = "username"
	LookupIDNumber LookupField = "idnumber"
	LookupEmail    LookupField = "email"
)

// LookupFields lists every accepted lookup field in display order
var LookupFields = []LookupField{LookupID, LookupUsername, LookupIDNumber, LookupEmail}

// ParseLookupField validates a lookup field name
func ParseLookupField(name string) (LookupField, error) {
	for _, f := range LookupFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid lookup field %q (must be one of %s)", name, LookupFieldList())
}

// LookupFieldList renders the accepted lookup fields as "id, username, ..."
func LookupFieldList() string {
	names := make([]string, len(LookupFields))
	for i, f := range LookupFields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Field describes one column of the user table
type Field struct {
	Name     string
	Type     string // SQL type shared by postgres and sqlite
	Nullable bool
	Default  string
}

// Catalog is the set of known user columns, in table order.
// Only names in the catalog are ever read or written by the generic paths.
var Catalog = []Field{
	{Name: "id", Type: "BIGINT"},
	{Name: "auth", Type: "VARCHAR(20)", Default: "'manual'"},
	{Name: "confirmed", Type: "SMALLINT", Default: "0"},
	{Name: "policyagreed", Type: "SMALLINT", Default: "0"},
	{Name: "deleted", Type: "SMALLINT", Default: "0"},
	{Name: "suspended", Type: "SMALLINT", Default: "0"},
	{Name: "mnethostid", Type: "BIGINT", Default: "0"},
	{Name: "username", Type: "VARCHAR(100)", Default: "''"},
	{Name: "password", Type: "VARCHAR(255)", Default: "''"},
	{Name: "idnumber", Type: "VARCHAR(255)", Default: "''"},
	{Name: "firstname", Type: "VARCHAR(100)", Default: "''"},
	{Name: "lastname", Type: "VARCHAR(100)", Default: "''"},
	{Name: "email", Type: "VARCHAR(100)", Default: "''"},
	{Name: "emailstop", Type: "SMALLINT", Default: "0"},
	{Name: "icq", Type: "VARCHAR(15)", Default: "''"},
	{Name: "skype", Type: "VARCHAR(50)", Default: "''"},
	{Name: "yahoo", Type: "VARCHAR(50)", Default: "''"},
	{Name: "aim", Type: "VARCHAR(50)", Default: "''"},
	{Name: "msn", Type: "VARCHAR(50)", Default: "''"},
	{Name: "phone1", Type: "VARCHAR(20)", Default: "''"},
	{Name: "phone2", Type: "VARCHAR(20)", Default: "''"},
	{Name: "institution", Type: "VARCHAR(255)", Default: "''"},
	{Name: "department", Type: "VARCHAR(255)", Default: "''"},
	{Name: "address", Type: "VARCHAR(255)", Default: "''"},
	{Name: "city", Type: "VARCHAR(120)", Default: "''"},
	{Name: "country", Type: "VARCHAR(2)", Default: "''"},
	{Name: "lang", Type: "VARCHAR(30)", Default: "'en'"},
	{Name: "theme", Type: "VARCHAR(50)", Default: "''"},
	{Name: "timezone", Type: "VARCHAR(100)", Default: "'99'"},
	{Name: "firstaccess", Type: "BIGINT", Default: "0"},
	{Name: "lastaccess", Type: "BIGINT", Default: "0"},
	{Name: "lastlogin", Type: "BIGINT", Default: "0"},
	{Name: "currentlogin", Type: "BIGINT", Default: "0"},
	{Name: "lastip", Type: "VARCHAR(45)", Default: "''"},
	{Name: "secret", Type: "VARCHAR(15)", Default: "''"},
	{Name: "picture", Type: "BIGINT", Default: "0"},
	{Name: "url", Type: "VARCHAR(255)", Default: "''"},
	{Name: "description", Type: "TEXT", Nullable: true},
	{Name: "descriptionformat", Type: "SMALLINT", Default: "1"},
	{Name: "mailformat", Type: "SMALLINT", Default: "1"},
	{Name: "maildigest", Type: "SMALLINT", Default: "0"},
	{Name: "maildisplay", Type: "SMALLINT", Default: "2"},
	{Name: "autosubscribe", Type: "SMALLINT", Default: "1"},
	{Name: "trackforums", Type: "SMALLINT", Default: "0"},
	{Name: "timecreated", Type: "BIGINT", Default: "0"},
	{Name: "timemodified", Type: "BIGINT", Default: "0"},
	{Name: "trustbitmask", Type: "BIGINT", Default: "0"},
	{Name: "imagealt", Type: "VARCHAR(255)", Nullable: true},
	{Name: "lastnamephonetic", Type: "VARCHAR(255)", Nullable: true},
	{Name: "firstnamephonetic", Type: "VARCHAR(255)", Nullable: true},
	{Name: "middlename", Type: "VARCHAR(255)", Nullable: true},
	{Name: "alternatename", Type: "VARCHAR(255)", Nullable: true},
	{Name: "calendartype", Type: "VARCHAR(30)", Default: "'gregorian'"},
}

// Sensitive fields are never returned by reads nor accepted by generic writes
var Sensitive = map[string]bool{
	"password": true,
	"secret":   true,
}

var catalogIndex = func() map[string]bool {
	idx := make(map[string]bool, len(Catalog))
	for _, f := range Catalog {
		idx[f.Name] = true
	}
	return idx
}()

// IsField reports whether name is a known user column
func IsField(name string) bool {
	return catalogIndex[name]
}

// ReadableFields returns the projection for a read.
// An empty request selects every catalog field except the sensitive ones;
// otherwise unknown and sensitive names are silently dropped.
func ReadableFields(requested []string) []string {
	var out []string
	if len(requested) == 0 {
		for _, f := range Catalog {
			if !Sensitive[f.Name] {
				out = append(out, f.Name)
			}
		}
		return out
	}

	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if Sensitive[name] || !IsField(name) || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// WritableValues copies the entries of submitted whose key is a known,
// non-sensitive column other than id. Extra names in exclude are dropped too.
func WritableValues(submitted map[string]string, exclude ...string) map[string]string {
	skip := map[string]bool{"id": true}
	for _, name := range exclude {
		skip[name] = true
	}

	out := make(map[string]string, len(submitted))
	for key, value := range submitted {
		if skip[key] || Sensitive[key] || !IsField(key) {
			continue
		}
		out[key] = value
	}
	return out
}
