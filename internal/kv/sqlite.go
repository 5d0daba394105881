package kv

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/dukerupert/rewardledger/internal/model"
)

var tableRegexp = regexp.MustCompile(`^[a-z_]+$`)

// SQLite is a Collection backed by one table of the schema created by the
// database migrations: (seq, key, value, created_at, updated_at).
//
// Per-key locking happens in process, so a database file must have a single
// owning process.
type SQLite[V any] struct {
	db    *sql.DB
	table string
	keys  *KeyLock
}

// NewSQLite panics if table is not a plain lower-case identifier.
func NewSQLite[V any](db *sql.DB, table string) *SQLite[V] {
	if !tableRegexp.MatchString(table) {
		panic(fmt.Sprintf("kv: invalid table name %q", table))
	}
	return &SQLite[V]{db: db, table: table, keys: NewKeyLock()}
}

func (s *SQLite[V]) load(key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT value FROM `+s.table+` WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s record: %w", s.table, err)
	}
	return data, nil
}

func (s *SQLite[V]) Get(key string) (*V, error) {
	data, err := s.load(key)
	if err != nil || data == nil {
		return nil, err
	}
	return decode[V](data)
}

func (s *SQLite[V]) Insert(key string, v V) error {
	unlock := s.keys.Lock(key)
	defer unlock()

	data, err := encode(v)
	if err != nil {
		return err
	}
	return s.insert(key, data)
}

func (s *SQLite[V]) insert(key string, data []byte) error {
	result, err := s.db.Exec(
		`INSERT INTO `+s.table+` (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		key, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", s.table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrAlreadyExists
	}
	return nil
}

func (s *SQLite[V]) Update(key string, fn func(v *V) error) error {
	return s.Upsert(key, func(v *V, exists bool) error {
		if !exists {
			return model.ErrNotFound
		}
		return fn(v)
	})
}

func (s *SQLite[V]) Upsert(key string, fn func(v *V, exists bool) error) error {
	unlock := s.keys.Lock(key)
	defer unlock()

	data, err := s.load(key)
	if err != nil {
		return err
	}
	exists := data != nil

	v := new(V)
	if exists {
		if v, err = decode[V](data); err != nil {
			return err
		}
	}

	if err := fn(v, exists); err != nil {
		return err
	}

	data, err = encode(*v)
	if err != nil {
		return err
	}
	if !exists {
		return s.insert(key, data)
	}

	_, err = s.db.Exec(
		`UPDATE `+s.table+` SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ?`,
		string(data), key,
	)
	if err != nil {
		return fmt.Errorf("update %s record: %w", s.table, err)
	}
	return nil
}

func (s *SQLite[V]) List() ([]V, error) {
	rows, err := s.db.Query(`SELECT value FROM ` + s.table + ` ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", s.table, err)
	}
	defer rows.Close()

	var out []V
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", s.table, err)
		}
		v, err := decode[V](data)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
