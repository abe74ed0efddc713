package runtime

// database/sql drivers for the sqlite scheme. postgres and mysql drivers
// register through the imports in connector.go.
import _ "modernc.org/sqlite"
