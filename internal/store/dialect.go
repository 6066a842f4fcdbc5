package store

import (
	"errors"
	"sort"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Index names shared by every dialect so unique violations can be mapped back
// to the invariant that was broken.
const (
	indexAPIKeysOnKey        = "index_api_keys_on_key"
	indexAPIKeysOnClientName = "index_api_keys_on_client_name"
)

type idStrategy int

const (
	idLastInsert idStrategy = iota // sqlite, mysql
	idReturning                    // postgres: INSERT ... RETURNING id
	idOutput                       // sql server: INSERT ... OUTPUT INSERTED.id VALUES ...
)

// dialect captures everything that differs between the supported backends:
// the database/sql driver, identifier quoting, how generated IDs come back,
// the DDL, and how a unique violation is reported.
type dialect struct {
	name       string
	driverName string
	quote      func(string) string
	insertID   idStrategy
	migrations []string

	// uniqueViolation reports whether err is a unique constraint violation and
	// returns the text naming the violated index or column.
	uniqueViolation func(err error) (string, bool)
}

var dialects = map[string]*dialect{
	"sqlite": {
		name:            "sqlite",
		driverName:      "sqlite",
		quote:           doubleQuote,
		insertID:        idLastInsert,
		migrations:      sqliteMigrations,
		uniqueViolation: sqliteUniqueViolation,
	},
	"postgres": {
		name:            "postgres",
		driverName:      "pgx",
		quote:           doubleQuote,
		insertID:        idReturning,
		migrations:      postgresMigrations,
		uniqueViolation: postgresUniqueViolation,
	},
	"mysql": {
		name:            "mysql",
		driverName:      "mysql",
		quote:           func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		insertID:        idLastInsert,
		migrations:      mysqlMigrations,
		uniqueViolation: mysqlUniqueViolation,
	},
	"mssql": {
		name:            "mssql",
		driverName:      "sqlserver",
		quote:           func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
		insertID:        idOutput,
		migrations:      mssqlMigrations,
		uniqueViolation: mssqlUniqueViolation,
	},
}

// Drivers returns the names accepted as database.driver, sorted.
func Drivers() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// insertSQL builds an INSERT for the given columns with '?' placeholders.
// Callers must Rebind the result for the active driver.
func (d *dialect) insertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.quote(c)
		marks[i] = "?"
	}
	colList := strings.Join(quoted, ", ")
	values := "VALUES (" + strings.Join(marks, ", ") + ")"

	switch d.insertID {
	case idReturning:
		return "INSERT INTO " + table + " (" + colList + ") " + values + " RETURNING id"
	case idOutput:
		return "INSERT INTO " + table + " (" + colList + ") OUTPUT INSERTED.id " + values
	default:
		return "INSERT INTO " + table + " (" + colList + ") " + values
	}
}

// apiKeyConflict maps a unique violation on api_keys to ErrDuplicateKey or
// ErrDuplicateClient. ok is false for any other error.
func (d *dialect) apiKeyConflict(err error) (conflict error, ok bool) {
	if err == nil {
		return nil, false
	}
	detail, ok := d.uniqueViolation(err)
	if !ok {
		return nil, false
	}
	switch {
	case strings.Contains(detail, indexAPIKeysOnClientName),
		strings.Contains(detail, "api_keys.client_name"):
		return ErrDuplicateClient, true
	case strings.Contains(detail, indexAPIKeysOnKey),
		strings.Contains(detail, "api_keys.key"):
		return ErrDuplicateKey, true
	}
	return nil, false
}

func (d *dialect) isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	_, ok := d.uniqueViolation(err)
	return ok
}

// SQLite reports "UNIQUE constraint failed: <table>.<column>".
func sqliteUniqueViolation(err error) (string, bool) {
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return msg, true
	}
	return "", false
}

func postgresUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// MySQL error 1062: "Duplicate entry 'x' for key 'api_keys.index_...'".
func mysqlUniqueViolation(err error) (string, bool) {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return myErr.Message, true
	}
	return "", false
}

// SQL Server 2601 (unique index) and 2627 (unique constraint) both name the
// index in the message.
func mssqlUniqueViolation(err error) (string, bool) {
	var numbered interface{ SQLErrorNumber() int32 }
	if errors.As(err, &numbered) {
		switch numbered.SQLErrorNumber() {
		case 2601, 2627:
			return err.Error(), true
		}
	}
	return "", false
}
