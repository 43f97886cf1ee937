package users

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/apilogin/pkg/storage"
)

// Schema returns the DDL creating the user table for a driver
func Schema(driver storage.Driver) []string {
	cols := make([]string, 0, len(Catalog))
	for _, f := range Catalog {
		if f.Name == "id" {
			if driver == storage.DriverSQLite {
				cols = append(cols, "id INTEGER PRIMARY KEY AUTOINCREMENT")
			} else {
				cols = append(cols, "id BIGSERIAL PRIMARY KEY")
			}
			continue
		}

		def := fmt.Sprintf("%s %s", f.Name, f.Type)
		if !f.Nullable {
			def += " NOT NULL"
		}
		if f.Default != "" {
			def += " DEFAULT " + f.Default
		}
		cols = append(cols, def)
	}

	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", Table, strings.Join(cols, ",\n\t")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_username ON %s (username)", Table, Table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_email ON %s (email)", Table, Table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_idnumber ON %s (idnumber)", Table, Table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_deleted ON %s (deleted)", Table, Table),
	}
}
