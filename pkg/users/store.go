package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/platinummonkey/apilogin/pkg/storage"
)

// Table is the user table name
const Table = "users"

// AuthAPILogin is the auth tag of accounts that sign in through login tokens
const AuthAPILogin = "apilogin"

var (
	// ErrNotFound is returned when no user matches a lookup
	ErrNotFound = errors.New("user not found")
)

// Record is a projection of a user row keyed by column name.
// NULL columns are nil.
type Record map[string]interface{}

// Identity is the typed core of a user row
type Identity struct {
	ID        int64
	Auth      string
	Username  string
	Email     string
	IDNumber  string
	Deleted   bool
	Suspended bool
}

// Store is the user record store
type Store interface {
	// Resolve finds the user whose lookup field equals value
	Resolve(ctx context.Context, field LookupField, value string) (*Identity, error)
	// Get loads one user by id projected onto fields
	Get(ctx context.Context, id int64, fields []string) (Record, error)
	// List loads every non-deleted user projected onto fields
	List(ctx context.Context, fields []string) ([]Record, error)
	// FindConflicts returns users sharing the username, email or (when set) idnumber
	FindConflicts(ctx context.Context, username, email, idnumber string) ([]Identity, error)
	// Insert creates a user and returns its id
	Insert(ctx context.Context, values map[string]string) (int64, error)
	// Update sets columns on the user with the given id
	Update(ctx context.Context, id int64, values map[string]interface{}) error
	// PasswordHash returns the stored password column for local sign-in
	PasswordHash(ctx context.Context, id int64) (string, error)
}

// SQLStore implements Store on a SQL database
type SQLStore struct {
	db *storage.DB
}

// NewSQLStore creates a new SQL-backed user store
func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

const identityColumns = "id, auth, username, email, idnumber, deleted, suspended"

// Resolve finds a user by one of the lookup fields
func (s *SQLStore) Resolve(ctx context.Context, field LookupField, value string) (*Identity, error) {
	if _, err := ParseLookupField(string(field)); err != nil {
		return nil, err
	}

	var arg interface{} = value
	if field == LookupID {
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, ErrNotFound
		}
		arg = id
	}

	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY id LIMIT 1",
		identityColumns, Table, field))

	ident, err := scanIdentity(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user by %s: %w", field, err)
	}
	return ident, nil
}

// Get loads a user by id
func (s *SQLStore) Get(ctx context.Context, id int64, fields []string) (Record, error) {
	columns := ReadableFields(fields)
	if len(columns) == 0 {
		return Record{}, nil
	}

	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		strings.Join(columns, ", "), Table))

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// List loads every user not flagged deleted
func (s *SQLStore) List(ctx context.Context, fields []string) ([]Record, error) {
	columns := ReadableFields(fields)
	if len(columns) == 0 {
		return []Record{}, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE deleted = 0 ORDER BY id",
		strings.Join(columns, ", "), Table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return records, nil
}

// FindConflicts looks for users already holding one of the unique identifiers
func (s *SQLStore) FindConflicts(ctx context.Context, username, email, idnumber string) ([]Identity, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE username = $1 OR email = $2", identityColumns, Table)
	args := []interface{}{username, email}
	if idnumber != "" {
		query += " OR idnumber = $3"
		args = append(args, idnumber)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to check user conflicts: %w", err)
	}
	defer rows.Close()

	var found []Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		found = append(found, *ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to check user conflicts: %w", err)
	}
	return found, nil
}

// Insert creates a user from catalog columns
func (s *SQLStore) Insert(ctx context.Context, values map[string]string) (int64, error) {
	columns, err := sortedColumns(values)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("no columns to insert")
	}

	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	query := s.db.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		Table, strings.Join(columns, ", "), strings.Join(placeholders, ", ")))

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

// Update sets catalog columns on one user
func (s *SQLStore) Update(ctx context.Context, id int64, values map[string]interface{}) error {
	columns, err := sortedColumns(values)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("no columns to update")
	}

	sets := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, values[col])
	}
	args = append(args, id)

	query := s.db.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		Table, strings.Join(sets, ", "), len(columns)+1))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PasswordHash reads the password column, which reads never project
func (s *SQLStore) PasswordHash(ctx context.Context, id int64) (string, error) {
	query := s.db.Rebind(fmt.Sprintf("SELECT password FROM %s WHERE id = $1", Table))

	var hash string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return hash, nil
}

// sortedColumns validates map keys against the catalog and orders them
func sortedColumns[V any](values map[string]V) ([]string, error) {
	columns := make([]string, 0, len(values))
	for col := range values {
		if col == "id" || !IsField(col) {
			return nil, fmt.Errorf("invalid user column: %s", col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIdentity(row rowScanner) (*Identity, error) {
	var (
		ident              Identity
		auth, idnumber     sql.NullString
		deleted, suspended int64
	)
	if err := row.Scan(&ident.ID, &auth, &ident.Username, &ident.Email, &idnumber, &deleted, &suspended); err != nil {
		return nil, err
	}
	ident.Auth = auth.String
	ident.IDNumber = idnumber.String
	ident.Deleted = deleted != 0
	ident.Suspended = suspended != 0
	return &ident, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := []Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
