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

package store

import (
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/filter"
)

// binding wires one entity type to its table: scanning, inserting, updating,
// and the whitelist of columns a filter may reference. JSON attribute columns
// are deliberately not filterable.
type binding struct {
	table       string
	columns     filter.Columns
	jsonColumns map[string]bool
	get         func(q sqlx.Ext, pk int64) (common.Row, error)
	sel         func(q sqlx.Ext, tail string, args []interface{}) ([]common.Row, error)
	insert      func(q sqlx.Ext, row common.Row) (int64, error)
	update      func(q sqlx.Ext, row common.Row) (int64, error)
}

var bindings = map[string]*binding{
	"client":    clientBinding,
	"code":      codeBinding,
	"calcjob":   calcJobBinding,
	"process":   processBinding,
	"data_node": dataNodeBinding,
}

func bindingFor(table string) (*binding, error) {
	b, ok := bindings[table]
	if !ok {
		return nil, validationf("unknown table: %s", table)
	}
	return b, nil
}

func dumpJSON(v interface{}, isNil bool, empty string) (string, error) {
	if isNil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode attribute column")
	}
	return string(b), nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type clientRecord struct {
	Pk              int64             `db:"pk"`
	Label           string            `db:"label"`
	ClientURL       string            `db:"client_url"`
	ClientID        string            `db:"client_id"`
	ClientSecret    string            `db:"client_secret"`
	TokenURI        string            `db:"token_uri"`
	MachineName     string            `db:"machine_name"`
	WorkDir         string            `db:"work_dir"`
	FSystem         common.Filesystem `db:"fsystem"`
	SmallFileSizeMB int64             `db:"small_file_size_mb"`
}

func (r *clientRecord) row() common.Row {
	return &common.Client{
		Pk:              r.Pk,
		Label:           r.Label,
		ClientURL:       r.ClientURL,
		ClientID:        r.ClientID,
		ClientSecret:    r.ClientSecret,
		TokenURI:        r.TokenURI,
		MachineName:     r.MachineName,
		WorkDir:         r.WorkDir,
		FSystem:         r.FSystem,
		SmallFileSizeMB: r.SmallFileSizeMB,
	}
}

func clientRecordOf(c *common.Client) *clientRecord {
	return &clientRecord{
		Pk:              c.Pk,
		Label:           c.Label,
		ClientURL:       c.ClientURL,
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		TokenURI:        c.TokenURI,
		MachineName:     c.MachineName,
		WorkDir:         c.WorkDir,
		FSystem:         c.FSystem,
		SmallFileSizeMB: c.SmallFileSizeMB,
	}
}

var clientBinding = &binding{
	table: "client",
	columns: filter.Columns{
		"pk": "pk", "label": "label", "client_url": "client_url",
		"client_id": "client_id", "client_secret": "client_secret",
		"token_uri": "token_uri", "machine_name": "machine_name",
		"work_dir": "work_dir", "fsystem": "fsystem",
		"small_file_size_mb": "small_file_size_mb",
	},
	get: func(q sqlx.Ext, pk int64) (common.Row, error) {
		var rec clientRecord
		if err := sqlx.Get(q, &rec, `SELECT * FROM client WHERE pk = ?`, pk); err != nil {
			return nil, err
		}
		return rec.row(), nil
	},
	sel: func(q sqlx.Ext, tail string, args []interface{}) ([]common.Row, error) {
		var recs []clientRecord
		if err := sqlx.Select(q, &recs, `SELECT * FROM client`+tail, args...); err != nil {
			return nil, err
		}
		rows := make([]common.Row, len(recs))
		for i := range recs {
			rows[i] = recs[i].row()
		}
		return rows, nil
	},
	insert: func(q sqlx.Ext, row common.Row) (int64, error) {
		res, err := sqlx.NamedExec(q, `
			INSERT INTO client (label, client_url, client_id, client_secret,
			                    token_uri, machine_name, work_dir, fsystem, small_file_size_mb)
			VALUES (:label, :client_url, :client_id, :client_secret,
			        :token_uri, :machine_name, :work_dir, :fsystem, :small_file_size_mb)`,
			clientRecordOf(row.(*common.Client)))
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	},
	update: func(q sqlx.Ext, row common.Row) (int64, error) {
		res, err := sqlx.NamedExec(q, `
			UPDATE client SET label = :label, client_url = :client_url,
			       client_id = :client_id, client_secret = :client_secret,
			       token_uri = :token_uri, machine_name = :machine_name,
			       work_dir = :work_dir, fsystem = :fsystem,
			       small_file_size_mb = :small_file_size_mb
			WHERE pk = :pk`,
			clientRecordOf(row.(*common.Client)))
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	},
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type codeRecord struct {
	Pk          int64  `db:"pk"`
	Label       string `db:"label"`
	ClientPk    int64  `db:"client_pk"`
	Script      string `db:"script"`
	UploadPaths string `db:"upload_paths"`
}

func (r *codeRecord) row() (common.Row, error) {
	c := &common.Code{Pk: r.Pk, Label: r.Label, ClientPk: r.ClientPk, Script: r.Script}
	if err := json.Unmarshal([]byte(r.UploadPaths), &c.UploadPaths); err != nil {
		return nil, errors.Wrapf(err, "code(%d) upload_paths", r.Pk)
	}
	return c, nil
}

func codeRecordOf(c *common.Code) (*codeRecord, error) {
	up, err := dumpJSON(c.UploadPaths, c.UploadPaths == nil, "{}")
	if err != nil {
		return nil, err
	}
	return &codeRecord{Pk: c.Pk, Label: c.Label, ClientPk: c.ClientPk, Script: c.Script, UploadPaths: up}, nil
}

var codeBinding = &binding{
	table: "code",
	columns: filter.Columns{
		"pk": "pk", "label": "label", "client_pk": "client_pk", "script": "script",
	},
	jsonColumns: map[string]bool{"upload_paths": true},
	get: func(q sqlx.Ext, pk int64) (common.Row, error) {
		var rec codeRecord
		if err := sqlx.Get(q, &rec, `SELECT * FROM code WHERE pk = ?`, pk); err != nil {
			return nil, err
		}
		return rec.row()
	},
	sel: func(q sqlx.Ext, tail string, args []interface{}) ([]common.Row, error) {
		var recs []codeRecord
		if err := sqlx.Select(q, &recs, `SELECT * FROM code`+tail, args...); err != nil {
			return nil, err
		}
		rows := make([]common.Row, len(recs))
		for i := range recs {
			row, err := recs[i].row()
			if err != nil {
				return nil, err
			}
			rows[i] = row
		}
		return rows, nil
	},
	insert: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := codeRecordOf(row.(*common.Code))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			INSERT INTO code (label, client_pk, script, upload_paths)
			VALUES (:label, :client_pk, :script, :upload_paths)`, rec)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	},
	update: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := codeRecordOf(row.(*common.Code))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			UPDATE code SET label = :label, client_pk = :client_pk,
			       script = :script, upload_paths = :upload_paths
			WHERE pk = :pk`, rec)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	},
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type calcJobRecord struct {
	Pk            int64  `db:"pk"`
	Label         string `db:"label"`
	UUID          string `db:"uuid"`
	CodePk        int64  `db:"code_pk"`
	Parameters    string `db:"parameters"`
	UploadPaths   string `db:"upload_paths"`
	DownloadGlobs string `db:"download_globs"`
}

func (r *calcJobRecord) row() (common.Row, error) {
	c := &common.CalcJob{Pk: r.Pk, Label: r.Label, UUID: r.UUID, CodePk: r.CodePk}
	if err := json.Unmarshal([]byte(r.Parameters), &c.Parameters); err != nil {
		return nil, errors.Wrapf(err, "calcjob(%d) parameters", r.Pk)
	}
	if err := json.Unmarshal([]byte(r.UploadPaths), &c.UploadPaths); err != nil {
		return nil, errors.Wrapf(err, "calcjob(%d) upload_paths", r.Pk)
	}
	if err := json.Unmarshal([]byte(r.DownloadGlobs), &c.DownloadGlobs); err != nil {
		return nil, errors.Wrapf(err, "calcjob(%d) download_globs", r.Pk)
	}
	return c, nil
}

func calcJobRecordOf(c *common.CalcJob) (*calcJobRecord, error) {
	params, err := dumpJSON(c.Parameters, c.Parameters == nil, "{}")
	if err != nil {
		return nil, err
	}
	up, err := dumpJSON(c.UploadPaths, c.UploadPaths == nil, "{}")
	if err != nil {
		return nil, err
	}
	globs, err := dumpJSON(c.DownloadGlobs, c.DownloadGlobs == nil, "[]")
	if err != nil {
		return nil, err
	}
	return &calcJobRecord{
		Pk: c.Pk, Label: c.Label, UUID: c.UUID, CodePk: c.CodePk,
		Parameters: params, UploadPaths: up, DownloadGlobs: globs,
	}, nil
}

var calcJobBinding = &binding{
	table: "calcjob",
	columns: filter.Columns{
		"pk": "pk", "label": "label", "uuid": "uuid", "code_pk": "code_pk",
	},
	jsonColumns: map[string]bool{"parameters": true, "upload_paths": true, "download_globs": true},
	get: func(q sqlx.Ext, pk int64) (common.Row, error) {
		var rec calcJobRecord
		if err := sqlx.Get(q, &rec, `SELECT * FROM calcjob WHERE pk = ?`, pk); err != nil {
			return nil, err
		}
		return rec.row()
	},
	sel: func(q sqlx.Ext, tail string, args []interface{}) ([]common.Row, error) {
		var recs []calcJobRecord
		if err := sqlx.Select(q, &recs, `SELECT * FROM calcjob`+tail, args...); err != nil {
			return nil, err
		}
		rows := make([]common.Row, len(recs))
		for i := range recs {
			row, err := recs[i].row()
			if err != nil {
				return nil, err
			}
			rows[i] = row
		}
		return rows, nil
	},
	insert: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := calcJobRecordOf(row.(*common.CalcJob))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			INSERT INTO calcjob (label, uuid, code_pk, parameters, upload_paths, download_globs)
			VALUES (:label, :uuid, :code_pk, :parameters, :upload_paths, :download_globs)`, rec)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	},
	update: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := calcJobRecordOf(row.(*common.CalcJob))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			UPDATE calcjob SET label = :label, uuid = :uuid, code_pk = :code_pk,
			       parameters = :parameters, upload_paths = :upload_paths,
			       download_globs = :download_globs
			WHERE pk = :pk`, rec)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	},
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type processRecord struct {
	Pk             int64          `db:"pk"`
	CalcJobPk      int64          `db:"calcjob_pk"`
	Step           common.Step    `db:"step"`
	State          common.State   `db:"state"`
	JobID          sql.NullString `db:"job_id"`
	Exception      sql.NullString `db:"exception"`
	RetrievedPaths string         `db:"retrieved_paths"`
}

func (r *processRecord) row() (common.Row, error) {
	p := &common.Process{Pk: r.Pk, CalcJobPk: r.CalcJobPk, Step: r.Step, State: r.State}
	if r.JobID.Valid {
		jobID := r.JobID.String
		p.JobID = &jobID
	}
	if r.Exception.Valid {
		exc := r.Exception.String
		p.Exception = &exc
	}
	if err := json.Unmarshal([]byte(r.RetrievedPaths), &p.RetrievedPaths); err != nil {
		return nil, errors.Wrapf(err, "process(%d) retrieved_paths", r.Pk)
	}
	return p, nil
}

func processRecordOf(p *common.Process) (*processRecord, error) {
	paths, err := dumpJSON(p.RetrievedPaths, p.RetrievedPaths == nil, "{}")
	if err != nil {
		return nil, err
	}
	rec := &processRecord{Pk: p.Pk, CalcJobPk: p.CalcJobPk, Step: p.Step, State: p.State, RetrievedPaths: paths}
	if p.JobID != nil {
		rec.JobID = sql.NullString{String: *p.JobID, Valid: true}
	}
	if p.Exception != nil {
		rec.Exception = sql.NullString{String: *p.Exception, Valid: true}
	}
	return rec, nil
}

var processBinding = &binding{
	table: "process",
	columns: filter.Columns{
		"pk": "pk", "calcjob_pk": "calcjob_pk", "step": "step",
		"state": "state", "job_id": "job_id", "exception": "exception",
	},
	jsonColumns: map[string]bool{"retrieved_paths": true},
	get: func(q sqlx.Ext, pk int64) (common.Row, error) {
		var rec processRecord
		if err := sqlx.Get(q, &rec, `SELECT * FROM process WHERE pk = ?`, pk); err != nil {
			return nil, err
		}
		return rec.row()
	},
	sel: func(q sqlx.Ext, tail string, args []interface{}) ([]common.Row, error) {
		var recs []processRecord
		if err := sqlx.Select(q, &recs, `SELECT * FROM process`+tail, args...); err != nil {
			return nil, err
		}
		rows := make([]common.Row, len(recs))
		for i := range recs {
			row, err := recs[i].row()
			if err != nil {
				return nil, err
			}
			rows[i] = row
		}
		return rows, nil
	},
	insert: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := processRecordOf(row.(*common.Process))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			INSERT INTO process (calcjob_pk, step, state, job_id, exception, retrieved_paths)
			VALUES (:calcjob_pk, :step, :state, :job_id, :exception, :retrieved_paths)`, rec)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	},
	update: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := processRecordOf(row.(*common.Process))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			UPDATE process SET calcjob_pk = :calcjob_pk, step = :step, state = :state,
			       job_id = :job_id, exception = :exception, retrieved_paths = :retrieved_paths
			WHERE pk = :pk`, rec)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	},
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type dataNodeRecord struct {
	Pk         int64  `db:"pk"`
	CreatorPk  int64  `db:"creator_pk"`
	Attributes string `db:"attributes"`
}

func (r *dataNodeRecord) row() (common.Row, error) {
	d := &common.DataNode{Pk: r.Pk, CreatorPk: r.CreatorPk}
	if err := json.Unmarshal([]byte(r.Attributes), &d.Attributes); err != nil {
		return nil, errors.Wrapf(err, "data_node(%d) attributes", r.Pk)
	}
	return d, nil
}

func dataNodeRecordOf(d *common.DataNode) (*dataNodeRecord, error) {
	attrs, err := dumpJSON(d.Attributes, d.Attributes == nil, "{}")
	if err != nil {
		return nil, err
	}
	return &dataNodeRecord{Pk: d.Pk, CreatorPk: d.CreatorPk, Attributes: attrs}, nil
}

var dataNodeBinding = &binding{
	table: "data_node",
	columns: filter.Columns{
		"pk": "pk", "creator_pk": "creator_pk",
	},
	jsonColumns: map[string]bool{"attributes": true},
	get: func(q sqlx.Ext, pk int64) (common.Row, error) {
		var rec dataNodeRecord
		if err := sqlx.Get(q, &rec, `SELECT * FROM data_node WHERE pk = ?`, pk); err != nil {
			return nil, err
		}
		return rec.row()
	},
	sel: func(q sqlx.Ext, tail string, args []interface{}) ([]common.Row, error) {
		var recs []dataNodeRecord
		if err := sqlx.Select(q, &recs, `SELECT * FROM data_node`+tail, args...); err != nil {
			return nil, err
		}
		rows := make([]common.Row, len(recs))
		for i := range recs {
			row, err := recs[i].row()
			if err != nil {
				return nil, err
			}
			rows[i] = row
		}
		return rows, nil
	},
	insert: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := dataNodeRecordOf(row.(*common.DataNode))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			INSERT INTO data_node (creator_pk, attributes)
			VALUES (:creator_pk, :attributes)`, rec)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	},
	update: func(q sqlx.Ext, row common.Row) (int64, error) {
		rec, err := dataNodeRecordOf(row.(*common.DataNode))
		if err != nil {
			return 0, err
		}
		res, err := sqlx.NamedExec(q, `
			UPDATE data_node SET creator_pk = :creator_pk, attributes = :attributes
			WHERE pk = :pk`, rec)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	},
}
