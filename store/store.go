// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package store persists the entity graph (clients, codes, calcjobs,
// processes, data nodes) in SQLite next to the content-addressed object
// store. Rows handed out are frozen snapshots; mutations go through SaveRow
// and UpdateRow on unfrozen clones. One Store serialises all access, which is
// all the single-process runner needs.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/filter"
	"github.com/crestflow/crestflow/objstore"
)

const (
	// DBFileName is the relational half of a project directory.
	DBFileName = "storage.sqlite"
	// ObjectsDirName holds the content-addressed blobs.
	ObjectsDirName = "objects"
)

// Store bundles the SQLite session with the project's object store, the same
// pairing a project directory has on disk.
type Store struct {
	mu      sync.Mutex
	db      *sqlx.DB
	objects objstore.ObjectStore
}

// InMemory creates a throwaway store backed by an in-memory database and an
// in-memory object store.
func InMemory() (*Store, error) {
	db, err := sqlx.Connect("sqlite3", "file::memory:?_foreign_keys=1")
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory store")
	}
	// the in-memory database lives and dies with its one connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{db: db, objects: objstore.NewMemoryStore()}, nil
}

// FromPath opens the store inside a project directory. With init set it
// creates the directory, the database schema and the objects directory;
// otherwise a missing project is a user error pointing at `crestflow init`.
func FromPath(dir string, init bool) (*Store, error) {
	dbPath := filepath.Join(dir, DBFileName)
	objPath := filepath.Join(dir, ObjectsDirName)

	var objects objstore.ObjectStore
	if init {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "create project directory")
		}
		fileStore, err := objstore.InitFileStore(objPath)
		if err != nil {
			return nil, err
		}
		objects = fileStore
	} else {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return nil, validationf("project directory not found (run `crestflow init`): %s", dir)
		}
		if _, err := os.Stat(dbPath); err != nil {
			return nil, validationf("project database not found (run `crestflow init`): %s", dbPath)
		}
		fileStore, err := objstore.NewFileStore(objPath)
		if err != nil {
			return nil, validationf("object store not found (run `crestflow init`): %s", objPath)
		}
		objects = fileStore
	}

	db, err := sqlx.Connect("sqlite3", "file:"+dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", dbPath)
	}
	db.SetMaxOpenConns(1)
	if init {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create schema")
		}
	}
	return &Store{db: db, objects: objects}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Objects exposes the object store half of the project.
func (s *Store) Objects() objstore.ObjectStore {
	return s.objects
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// SaveRow inserts a new row in its own transaction. Labels left empty are
// given a free name from the friendly-name pool, calcjob uuids default to a
// fresh v4, and saving a calcjob also creates its process (step created,
// state playing). On return the row carries its pk and is frozen.
func (s *Store) SaveRow(row common.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "begin save")
	}
	if err := s.saveRow(tx, row); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit save")
}

func (s *Store) saveRow(q sqlx.Ext, row common.Row) error {
	if row.IsFrozen() {
		return errors.Wrapf(ErrFrozen, "cannot save %s(%d)", row.Table(), row.RowPK())
	}
	if row.RowPK() != 0 {
		return errors.Wrapf(ErrAlreadySaved, "%s(%d)", row.Table(), row.RowPK())
	}
	b, err := bindingFor(row.Table())
	if err != nil {
		return err
	}

	switch r := row.(type) {
	case *common.Client:
		if r.Label == "" {
			r.Label, err = pickLabel(q, `SELECT COUNT(*) FROM client WHERE label = ?`)
			if err != nil {
				return err
			}
		}
	case *common.Code:
		if err := s.checkUploadPaths(r.UploadPaths, "code"); err != nil {
			return err
		}
		if r.Label == "" {
			r.Label, err = pickLabel(q, `SELECT COUNT(*) FROM code WHERE client_pk = ? AND label = ?`, r.ClientPk)
			if err != nil {
				return err
			}
		}
	case *common.CalcJob:
		if err := s.checkUploadPaths(r.UploadPaths, "calcjob"); err != nil {
			return err
		}
		if r.UUID == "" {
			r.UUID = uuid.NewString()
		}
	}

	pk, err := b.insert(q, row)
	if err != nil {
		if serr, ok := constraintError(err); ok {
			return validationf("save %s: %v", row.Table(), serr)
		}
		return errors.Wrapf(err, "save %s", row.Table())
	}
	setPk(row, pk)

	// a calcjob is born with its execution record
	if _, ok := row.(*common.CalcJob); ok {
		_, err = q.Exec(
			`INSERT INTO process (calcjob_pk, step, state, retrieved_paths) VALUES (?, ?, ?, '{}')`,
			pk, common.EStep.Created(), common.EState.Playing())
		if err != nil {
			return errors.Wrap(err, "save process for calcjob")
		}
	}

	row.Freeze()
	return nil
}

// UpdateRow writes every mutable column of an existing row. The row must be
// an unfrozen clone; this is the engine's persistence path for step
// transitions.
func (s *Store) UpdateRow(row common.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.IsFrozen() {
		return errors.Wrapf(ErrFrozen, "cannot update %s(%d)", row.Table(), row.RowPK())
	}
	if row.RowPK() == 0 {
		return validationf("cannot update an unsaved %s", row.Table())
	}
	b, err := bindingFor(row.Table())
	if err != nil {
		return err
	}
	n, err := b.update(s.db, row)
	if err != nil {
		if serr, ok := constraintError(err); ok {
			return validationf("update %s(%d): %v", row.Table(), row.RowPK(), serr)
		}
		return errors.Wrapf(err, "update %s(%d)", row.Table(), row.RowPK())
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s(%d)", row.Table(), row.RowPK())
	}
	return nil
}

// DeleteRow removes a row. A row other rows still reference comes back as an
// UndeletableError and is left in place; a calcjob takes its process and data
// nodes with it.
func (s *Store) DeleteRow(row common.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.RowPK() == 0 {
		return validationf("cannot delete an unsaved %s", row.Table())
	}
	b, err := bindingFor(row.Table())
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM `+b.table+` WHERE pk = ?`, row.RowPK())
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return &UndeletableError{Table: b.table, Pk: row.RowPK()}
		}
		return errors.Wrapf(err, "delete %s(%d)", b.table, row.RowPK())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete %s(%d)", b.table, row.RowPK())
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s(%d)", b.table, row.RowPK())
	}
	return nil
}

// GetRow fetches one row by table name and pk. The returned row is frozen.
func (s *Store) GetRow(table string, pk int64) (common.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := bindingFor(table)
	if err != nil {
		return nil, err
	}
	row, err := b.get(s.db, pk)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "%s(%d)", table, pk)
		}
		return nil, errors.Wrapf(err, "get %s(%d)", table, pk)
	}
	row.Freeze()
	return row, nil
}

// HasRow reports whether a pk exists in a table.
func (s *Store) HasRow(table string, pk int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := bindingFor(table)
	if err != nil {
		return false, err
	}
	var one int
	err = sqlx.Get(s.db, &one, `SELECT 1 FROM `+b.table+` WHERE pk = ?`, pk)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "probe %s(%d)", table, pk)
	}
	return true, nil
}

// CountRows counts the rows matching every given filter.
func (s *Store) CountRows(table string, where ...*filter.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := bindingFor(table)
	if err != nil {
		return 0, err
	}
	tail, args, err := whereTail(b, where)
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.Get(s.db, &n, `SELECT COUNT(*) FROM `+b.table+tail, args...); err != nil {
		return 0, errors.Wrapf(err, "count %s", table)
	}
	return n, nil
}

// IterRows returns one page of rows matching every given filter, ordered by
// pk. Page numbers start at 1; a pageSize of zero or less returns everything.
// Returned rows are frozen.
func (s *Store) IterRows(table string, page, pageSize int, where ...*filter.Filter) ([]common.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := bindingFor(table)
	if err != nil {
		return nil, err
	}
	tail, args, err := whereTail(b, where)
	if err != nil {
		return nil, err
	}
	tail += ` ORDER BY pk`
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		tail += ` LIMIT ? OFFSET ?`
		args = append(args, pageSize, (page-1)*pageSize)
	}
	rows, err := b.sel(s.db, tail, args)
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", table)
	}
	for _, row := range rows {
		row.Freeze()
	}
	return rows, nil
}

// GetColumn fetches a single column of one row without materialising the
// whole row. JSON attribute columns come back decoded.
func (s *Store) GetColumn(table string, pk int64, column string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := bindingFor(table)
	if err != nil {
		return nil, err
	}
	if _, ok := b.columns[column]; !ok && !b.jsonColumns[column] {
		return nil, validationf("unknown column: %s.%s", table, column)
	}
	var raw interface{}
	err = s.db.QueryRowx(`SELECT `+column+` FROM `+b.table+` WHERE pk = ?`, pk).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "%s(%d)", table, pk)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s(%d).%s", table, pk, column)
	}
	if bs, ok := raw.([]byte); ok {
		raw = string(bs)
	}
	if b.jsonColumns[column] {
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw.(string)), &decoded); err != nil {
			return nil, errors.Wrapf(err, "decode %s(%d).%s", table, pk, column)
		}
		return decoded, nil
	}
	return raw, nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// GetRowAs fetches one row by pk; the type parameter names the table.
func GetRowAs[R common.Row](s *Store, pk int64) (R, error) {
	var zero R
	row, err := s.GetRow(zero.Table(), pk)
	if err != nil {
		return zero, err
	}
	return row.(R), nil
}

// IterRowsAs is IterRows with a concrete row type.
func IterRowsAs[R common.Row](s *Store, page, pageSize int, where ...*filter.Filter) ([]R, error) {
	var zero R
	rows, err := s.IterRows(zero.Table(), page, pageSize, where...)
	if err != nil {
		return nil, err
	}
	out := make([]R, len(rows))
	for i, row := range rows {
		out[i] = row.(R)
	}
	return out, nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func whereTail(b *binding, filters []*filter.Filter) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}
	for _, f := range filters {
		clause, fargs, err := f.ToSQL(b.columns)
		if err != nil {
			return "", nil, err
		}
		if clause == "" {
			continue
		}
		clauses = append(clauses, "("+clause+")")
		args = append(args, fargs...)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return ` WHERE ` + strings.Join(clauses, " AND "), args, nil
}

// pickLabel draws from the friendly-name pool until a free name turns up.
// countQuery must count rows with the candidate label; scope carries any
// leading arguments (the client pk for code labels).
func pickLabel(q sqlx.Ext, countQuery string, scope ...interface{}) (string, error) {
	for i := 0; i < 4*len(common.FriendlyNames); i++ {
		name := common.RandomFriendlyName()
		var n int
		if err := sqlx.Get(q, &n, countQuery, append(append([]interface{}{}, scope...), name)...); err != nil {
			return "", errors.Wrap(err, "probe label")
		}
		if n == 0 {
			return name, nil
		}
	}
	return "", validationf("friendly-name pool exhausted, set a label explicitly")
}

// checkUploadPaths enforces the upload map contract: keys are relative posix
// paths and every non-null value is a key already present in the object
// store.
func (s *Store) checkUploadPaths(paths map[string]*string, what string) error {
	for rel, key := range paths {
		if !relativePosixPath(rel) {
			return validationf("%s upload_paths[%q]: not a relative posix path", what, rel)
		}
		if key == nil {
			continue
		}
		if !objstore.ValidKey(*key) {
			return validationf("%s upload_paths[%q]: malformed object key %q", what, rel, *key)
		}
		ok, err := s.objects.Contains(*key)
		if err != nil {
			return errors.Wrapf(err, "%s upload_paths[%q]", what, rel)
		}
		if !ok {
			return validationf("%s upload_paths[%q]: key %s not in object store", what, rel, *key)
		}
	}
	return nil
}

func relativePosixPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

func setPk(row common.Row, pk int64) {
	switch r := row.(type) {
	case *common.Client:
		r.Pk = pk
	case *common.Code:
		r.Pk = pk
	case *common.CalcJob:
		r.Pk = pk
	case *common.Process:
		r.Pk = pk
	case *common.DataNode:
		r.Pk = pk
	}
}

func constraintError(err error) (sqlite3.Error, bool) {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return serr, true
	}
	return sqlite3.Error{}, false
}
