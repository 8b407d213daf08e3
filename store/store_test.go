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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/filter"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := InMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveClient(t *testing.T, s *Store, label string) *common.Client {
	t.Helper()
	c := &common.Client{
		Label:           label,
		ClientURL:       "https://api.example.org",
		ClientID:        "id",
		ClientSecret:    "secret",
		TokenURI:        "https://auth.example.org/token",
		MachineName:     "cluster",
		WorkDir:         "/scratch/svc",
		FSystem:         common.EFilesystem.Posix(),
		SmallFileSizeMB: 5,
	}
	require.NoError(t, s.SaveRow(c))
	return c
}

func saveCode(t *testing.T, s *Store, clientPk int64, label string) *common.Code {
	t.Helper()
	c := &common.Code{Label: label, ClientPk: clientPk, Script: "#!/bin/bash\necho hi\n"}
	require.NoError(t, s.SaveRow(c))
	return c
}

func saveCalcJob(t *testing.T, s *Store, codePk int64) *common.CalcJob {
	t.Helper()
	c := &common.CalcJob{CodePk: codePk, DownloadGlobs: []string{"**"}}
	require.NoError(t, s.SaveRow(c))
	return c
}

func TestSaveRowAssignsPkAndFreezes(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "alpha")
	a.NotZero(client.Pk)
	a.True(client.IsFrozen())

	got, err := GetRowAs[*common.Client](s, client.Pk)
	a.NoError(err)
	a.True(got.IsFrozen())
	a.Equal("alpha", got.Label)

	// returned rows are snapshots: local edits never reach the database
	got.Label = "scribbled"
	again, err := GetRowAs[*common.Client](s, client.Pk)
	a.NoError(err)
	a.Equal("alpha", again.Label)
}

func TestSaveRowRejectsFrozenAndResaved(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "alpha")
	err := s.SaveRow(client)
	a.ErrorIs(err, ErrFrozen)

	copied := &common.Client{Pk: client.Pk, Label: "other"}
	a.ErrorIs(s.SaveRow(copied), ErrAlreadySaved)
}

func TestLabelsDefaultFromFriendlyNamePool(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "")
	a.NotEmpty(client.Label)
	a.Contains(common.FriendlyNames, client.Label)

	code := saveCode(t, s, client.Pk, "")
	a.NotEmpty(code.Label)
	a.Contains(common.FriendlyNames, code.Label)
}

func TestCalcJobSaveCreatesProcessAndUUID(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "alpha")
	code := saveCode(t, s, client.Pk, "code")
	calc := saveCalcJob(t, s, code.Pk)

	a.Len(calc.UUID, 36)

	procs, err := IterRowsAs[*common.Process](s, 1, 0,
		filter.Where("calcjob_pk", filter.EOp.Eq(), calc.Pk))
	a.NoError(err)
	a.Len(procs, 1)
	a.Equal(common.EStep.Created(), procs[0].Step)
	a.Equal(common.EState.Playing(), procs[0].State)
	a.Nil(procs[0].JobID)
}

func TestUploadPathValidation(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)
	client := saveClient(t, s, "alpha")

	key, err := s.Objects().AddFromBytes([]byte("payload"))
	require.NoError(t, err)

	var verr *ValidationError

	abs := &common.Code{ClientPk: client.Pk, Script: "x",
		UploadPaths: map[string]*string{"/abs/path": nil}}
	a.ErrorAs(s.SaveRow(abs), &verr)

	dotdot := &common.Code{ClientPk: client.Pk, Script: "x",
		UploadPaths: map[string]*string{"up/../escape": nil}}
	a.ErrorAs(s.SaveRow(dotdot), &verr)

	missing := "0000000000000000000000000000000000000000000000000000000000000000"
	dangling := &common.Code{ClientPk: client.Pk, Script: "x",
		UploadPaths: map[string]*string{"in.dat": &missing}}
	a.ErrorAs(s.SaveRow(dangling), &verr)

	ok := &common.Code{ClientPk: client.Pk, Script: "x",
		UploadPaths: map[string]*string{"in.dat": &key, "emptydir": nil}}
	a.NoError(s.SaveRow(ok))
}

func TestDuplicateClientLabelIsValidationError(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	saveClient(t, s, "alpha")
	dup := &common.Client{Label: "alpha"}
	var verr *ValidationError
	a.ErrorAs(s.SaveRow(dup), &verr)
}

func TestDeleteRowReportsDependants(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "alpha")
	code := saveCode(t, s, client.Pk, "code")

	var undeletable *UndeletableError
	err := s.DeleteRow(client)
	a.ErrorAs(err, &undeletable)
	a.Equal("client", undeletable.Table)

	// the client survived the attempt
	ok, err := s.HasRow("client", client.Pk)
	a.NoError(err)
	a.True(ok)

	a.NoError(s.DeleteRow(code))
	a.NoError(s.DeleteRow(client))
}

func TestDeleteCalcJobCascades(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "alpha")
	code := saveCode(t, s, client.Pk, "code")
	calc := saveCalcJob(t, s, code.Pk)
	node := &common.DataNode{CreatorPk: calc.Pk, Attributes: map[string]interface{}{"paths": []string{"out.txt"}}}
	require.NoError(t, s.SaveRow(node))

	a.NoError(s.DeleteRow(calc))

	n, err := s.CountRows("process")
	a.NoError(err)
	a.Zero(n)
	n, err = s.CountRows("data_node")
	a.NoError(err)
	a.Zero(n)
}

func TestDeleteUnknownRowIsNotFound(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)
	a.ErrorIs(s.DeleteRow(&common.Client{Pk: 99}), ErrNotFound)
}

func TestIterRowsFilterAndPaging(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	for _, label := range []string{"a", "b", "c", "d", "e"} {
		saveClient(t, s, label)
	}

	f, err := filter.Parse("label IN ('a','c')")
	require.NoError(t, err)
	rows, err := IterRowsAs[*common.Client](s, 1, 0, f)
	a.NoError(err)
	if a.Len(rows, 2) {
		a.Equal("a", rows[0].Label)
		a.Equal("c", rows[1].Label)
		a.Less(rows[0].Pk, rows[1].Pk)
	}

	f, err = filter.Parse("pk > 0 AND label LIKE 'a%'")
	require.NoError(t, err)
	n, err := s.CountRows("client", f)
	a.NoError(err)
	a.Equal(1, n)

	page2, err := IterRowsAs[*common.Client](s, 2, 2)
	a.NoError(err)
	if a.Len(page2, 2) {
		a.Equal("c", page2[0].Label)
		a.Equal("d", page2[1].Label)
	}
}

func TestFilterUnknownColumnRejected(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)
	saveClient(t, s, "alpha")

	f, err := filter.Parse("nonsense == 3")
	require.NoError(t, err)
	_, err = s.IterRows("client", 1, 0, f)
	var ferr *filter.Error
	a.ErrorAs(err, &ferr)
	a.Contains(ferr.User, "Unknown column")
}

func TestGetColumn(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "alpha")
	code := saveCode(t, s, client.Pk, "code")
	calc := &common.CalcJob{CodePk: code.Pk, Parameters: map[string]interface{}{"n": 3.0}}
	require.NoError(t, s.SaveRow(calc))

	script, err := s.GetColumn("code", code.Pk, "script")
	a.NoError(err)
	a.Equal("#!/bin/bash\necho hi\n", script)

	params, err := s.GetColumn("calcjob", calc.Pk, "parameters")
	a.NoError(err)
	a.Equal(map[string]interface{}{"n": 3.0}, params)

	var verr *ValidationError
	_, err = s.GetColumn("code", code.Pk, "no_such_column")
	a.ErrorAs(err, &verr)

	_, err = s.GetColumn("code", 999, "script")
	a.ErrorIs(err, ErrNotFound)
}

func TestUpdateRowPersistsClone(t *testing.T) {
	a := assert.New(t)
	s := newTestStore(t)

	client := saveClient(t, s, "alpha")
	code := saveCode(t, s, client.Pk, "code")
	calc := saveCalcJob(t, s, code.Pk)

	procs, err := IterRowsAs[*common.Process](s, 1, 0,
		filter.Where("calcjob_pk", filter.EOp.Eq(), calc.Pk))
	require.NoError(t, err)
	require.Len(t, procs, 1)

	a.ErrorIs(s.UpdateRow(procs[0]), ErrFrozen)

	clone := procs[0].Clone()
	clone.Step = common.EStep.Running()
	jobID := "4242"
	clone.JobID = &jobID
	a.NoError(s.UpdateRow(clone))

	got, err := GetRowAs[*common.Process](s, procs[0].Pk)
	a.NoError(err)
	a.Equal(common.EStep.Running(), got.Step)
	if a.NotNil(got.JobID) {
		a.Equal("4242", *got.JobID)
	}
}

func TestFromPathInitAndReopen(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir() + "/project"

	_, err := FromPath(dir, false)
	var verr *ValidationError
	a.ErrorAs(err, &verr)

	s, err := FromPath(dir, true)
	require.NoError(t, err)
	client := saveClient(t, s, "alpha")
	require.NoError(t, s.Close())

	s, err = FromPath(dir, false)
	require.NoError(t, err)
	defer s.Close()
	got, err := GetRowAs[*common.Client](s, client.Pk)
	a.NoError(err)
	a.Equal("alpha", got.Label)
}
