package db

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"unicode"

	"github.com/TechXTT/tormtx/pkg/runtime"
	"github.com/TechXTT/tormtx/pkg/torm"
)

// DB opens sessions for one database link and offers table-level helpers.
type DB struct {
	*torm.DB
	connector *runtime.Connector
	driver    string
}

// Open validates link and prepares a DB. Connections are opened lazily by
// the first session.
func Open(link string, opts ...torm.Option) (*DB, error) {
	driver, _, err := runtime.ParseLink(link)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c := runtime.NewConnector()
	return &DB{DB: torm.New(c, link, opts...), connector: c, driver: driver}, nil
}

// FromSQL wraps an already opened *sql.DB. link only selects the SQL
// dialect; conn stays owned by the caller.
func FromSQL(conn *sql.DB, link string, opts ...torm.Option) (*DB, error) {
	driver, _, err := runtime.ParseLink(link)
	if err != nil {
		return nil, err
	}
	c := runtime.FromDB(conn)
	return &DB{DB: torm.New(c, link, opts...), connector: c, driver: driver}, nil
}

// Close closes the connection pools opened by this DB.
func (db *DB) Close() error {
	return db.connector.Close()
}

func (db *DB) placeholder(n int) string {
	if db.driver == "postgres" || db.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// TableName derives the table for T from its type name: "UserProfile"
// becomes "user_profile".
func TableName[T any]() string {
	elemType := reflect.TypeOf((*T)(nil)).Elem()
	for elemType.Kind() == reflect.Pointer {
		elemType = elemType.Elem()
	}
	tableName := ""
	for i, r := range elemType.Name() {
		if i == 0 {
			tableName += string(unicode.ToLower(r))
		} else {
			if unicode.IsUpper(r) {
				tableName += "_" + string(unicode.ToLower(r))
			} else {
				tableName += string(r)
			}
		}
	}
	return tableName
}

// List retrieves all rows from the table corresponding to T.
func List[T any](ctx context.Context, db *DB) ([]T, error) {
	s, err := db.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	query := fmt.Sprintf("SELECT * FROM %s", TableName[T]())
	return torm.Query(ctx, s, torm.Collection[T](), query)
}

// FetchByID returns the row of T's table whose id column equals id, or nil
// when there is none.
func FetchByID[T any](ctx context.Context, db *DB, id any) (*T, error) {
	s, err := db.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	query := fmt.Sprintf("SELECT * FROM %s WHERE id = %s", TableName[T](), db.placeholder(1))
	return torm.Query(ctx, s, torm.Struct[T](), query, id)
}
