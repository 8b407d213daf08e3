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

// JSON attribute columns are stored as TEXT. Deleting a calcjob removes its
// process and data nodes; deleting a client or code that is still referenced
// fails, which DeleteRow reports as an UndeletableError.
const schema = `
CREATE TABLE IF NOT EXISTS client (
	pk                 INTEGER PRIMARY KEY AUTOINCREMENT,
	label              TEXT    NOT NULL UNIQUE,
	client_url         TEXT    NOT NULL,
	client_id          TEXT    NOT NULL,
	client_secret      TEXT    NOT NULL,
	token_uri          TEXT    NOT NULL,
	machine_name       TEXT    NOT NULL,
	work_dir           TEXT    NOT NULL,
	fsystem            TEXT    NOT NULL DEFAULT 'posix'
	                   CHECK (fsystem IN ('posix', 'windows')),
	small_file_size_mb INTEGER NOT NULL DEFAULT 5
);

CREATE TABLE IF NOT EXISTS code (
	pk           INTEGER PRIMARY KEY AUTOINCREMENT,
	label        TEXT    NOT NULL,
	client_pk    INTEGER NOT NULL REFERENCES client (pk),
	script       TEXT    NOT NULL,
	upload_paths TEXT    NOT NULL DEFAULT '{}',
	UNIQUE (client_pk, label)
);

CREATE TABLE IF NOT EXISTS calcjob (
	pk             INTEGER PRIMARY KEY AUTOINCREMENT,
	label          TEXT    NOT NULL DEFAULT '',
	uuid           TEXT    NOT NULL UNIQUE,
	code_pk        INTEGER NOT NULL REFERENCES code (pk),
	parameters     TEXT    NOT NULL DEFAULT '{}',
	upload_paths   TEXT    NOT NULL DEFAULT '{}',
	download_globs TEXT    NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS process (
	pk              INTEGER PRIMARY KEY AUTOINCREMENT,
	calcjob_pk      INTEGER NOT NULL UNIQUE REFERENCES calcjob (pk) ON DELETE CASCADE,
	step            TEXT    NOT NULL DEFAULT 'created'
	                CHECK (step IN ('created', 'uploading', 'submitting', 'running', 'retrieving', 'finalised')),
	state           TEXT    NOT NULL DEFAULT 'playing'
	                CHECK (state IN ('playing', 'paused', 'finished', 'excepted')),
	job_id          TEXT,
	exception       TEXT,
	retrieved_paths TEXT    NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS data_node (
	pk         INTEGER PRIMARY KEY AUTOINCREMENT,
	creator_pk INTEGER NOT NULL REFERENCES calcjob (pk) ON DELETE CASCADE,
	attributes TEXT    NOT NULL DEFAULT '{}'
);
`
