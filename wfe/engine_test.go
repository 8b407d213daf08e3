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

package wfe

import (
	"bytes"
	"context"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/fcrest/fcresttest"
	"github.com/crestflow/crestflow/filter"
	"github.com/crestflow/crestflow/objstore"
	"github.com/crestflow/crestflow/store"
)

func newEngineStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.InMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newFacade(t *testing.T) *fcresttest.Server {
	t.Helper()
	fake := fcresttest.NewServer()
	t.Cleanup(fake.Close)
	return fake
}

// testEngine shrinks every duration so the poll loops spin in milliseconds.
func testEngine(st *store.Store, opts Options) *Engine {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.JobTimeout == 0 {
		opts.JobTimeout = time.Second
	}
	if opts.TransferTimeout == 0 {
		opts.TransferTimeout = time.Second
	}
	return NewEngine(st, opts)
}

func seedFacadeClient(t *testing.T, st *store.Store, fake *fcresttest.Server, thresholdMB int64) *common.Client {
	t.Helper()
	c := &common.Client{
		Label:           "alps",
		ClientURL:       fake.HTTP.URL,
		ClientID:        "tester",
		ClientSecret:    "hunter2",
		TokenURI:        fake.HTTP.URL + "/auth/token",
		MachineName:     "daint",
		WorkDir:         "/scratch/svc",
		FSystem:         common.EFilesystem.Posix(),
		SmallFileSizeMB: thresholdMB,
	}
	require.NoError(t, st.SaveRow(c))
	return c
}

type jobSeed struct {
	script      string
	params      map[string]interface{}
	codeUploads map[string]*string
	calcUploads map[string]*string
	globs       []string
}

func seedJob(t *testing.T, st *store.Store, client *common.Client, seed jobSeed) (*common.CalcJob, *common.Process) {
	t.Helper()
	code := &common.Code{Label: "pw", ClientPk: client.Pk, Script: seed.script, UploadPaths: seed.codeUploads}
	require.NoError(t, st.SaveRow(code))
	calc := &common.CalcJob{Label: "run1", CodePk: code.Pk, Parameters: seed.params,
		UploadPaths: seed.calcUploads, DownloadGlobs: seed.globs}
	require.NoError(t, st.SaveRow(calc))
	procs, err := store.IterRowsAs[*common.Process](st, 1, 0,
		filter.Where("calcjob_pk", filter.EOp.Eq(), calc.Pk))
	require.NoError(t, err)
	require.Len(t, procs, 1)
	return calc, procs[0]
}

func putObject(t *testing.T, st *store.Store, data []byte) *string {
	t.Helper()
	key, err := st.Objects().AddFromBytes(data)
	require.NoError(t, err)
	return &key
}

func reloadProcess(t *testing.T, st *store.Store, pk int64) *common.Process {
	t.Helper()
	proc, err := store.GetRowAs[*common.Process](st, pk)
	require.NoError(t, err)
	return proc
}

func dataNodesOf(t *testing.T, st *store.Store, calcPk int64) []*common.DataNode {
	t.Helper()
	nodes, err := store.IterRowsAs[*common.DataNode](st, 1, 0,
		filter.Where("creator_pk", filter.EOp.Eq(), calcPk))
	require.NoError(t, err)
	return nodes
}

func TestEngineRunsCalcJobToFinished(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)

	client := seedFacadeClient(t, st, fake, 1)
	calc, proc := seedJob(t, st, client, jobSeed{
		script: "#!/bin/bash\n{{code.label}} < {{calc.infile}} > out.txt\n",
		params: map[string]interface{}{"infile": "in.dat"},
		codeUploads: map[string]*string{
			"pseudo.dat": putObject(t, st, []byte("Si 28.085\n")),
		},
		calcUploads: map[string]*string{
			"in.dat":  putObject(t, st, []byte("1 2 3\n")),
			"scratch": nil,
		},
		globs: []string{"out.txt"},
	})
	fake.OnSubmit = func(jobID, scriptPath string) {
		fake.WriteFile(path.Join(path.Dir(scriptPath), "out.txt"), []byte("all good\n"))
	}

	eng := testEngine(st, Options{})
	a.NoError(eng.RunUnfinished(context.Background(), 10))

	got := reloadProcess(t, st, proc.Pk)
	a.Equal(common.EState.Finished(), got.State)
	a.Equal(common.EStep.Finalised(), got.Step)
	a.NotNil(got.JobID)
	a.Nil(got.Exception)

	wantKey := objstore.KeyOfBytes([]byte("all good\n"))
	a.Equal(map[string]*string{"out.txt": &wantKey}, got.RetrievedPaths)
	stored, err := st.Objects().Contains(wantKey)
	a.NoError(err)
	a.True(stored)

	// the job directory got the rendered script and every upload entry
	wd := common.RemoteWorkPath(client, calc).String()
	script, ok := fake.ReadFile(path.Join(wd, "job.sh"))
	a.True(ok)
	a.Equal("#!/bin/bash\npw < in.dat > out.txt\n", string(script))
	inDat, ok := fake.ReadFile(path.Join(wd, "in.dat"))
	a.True(ok)
	a.Equal("1 2 3\n", string(inDat))
	a.True(fake.Exists(path.Join(wd, "pseudo.dat")))
	a.True(fake.IsDir(path.Join(wd, "scratch")))
	a.Equal("daint", fake.LastMachine())

	nodes := dataNodesOf(t, st, calc.Pk)
	a.Len(nodes, 1)
	a.Equal([]interface{}{"out.txt"}, nodes[0].Attributes["paths"])
}

func TestEngineStagesLargeTransfersBothWays(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)
	fake.StagingDelay = 1

	inData := bytes.Repeat([]byte("a"), 64)
	outData := bytes.Repeat([]byte("b"), 128)
	inKey := putObject(t, st, inData)

	// threshold zero pushes every object transfer onto the staged route;
	// only the script itself stays in-band
	client := seedFacadeClient(t, st, fake, 0)
	calc, proc := seedJob(t, st, client, jobSeed{
		script:      "#!/bin/bash\nmix in.bin > out.bin\n",
		calcUploads: map[string]*string{"in.bin": inKey},
		globs:       []string{"*.bin"},
	})
	fake.OnSubmit = func(jobID, scriptPath string) {
		fake.WriteFile(path.Join(path.Dir(scriptPath), "out.bin"), outData)
	}

	eng := testEngine(st, Options{})
	a.NoError(eng.RunUnfinished(context.Background(), 10))

	got := reloadProcess(t, st, proc.Pk)
	a.Equal(common.EState.Finished(), got.State)

	outKey := objstore.KeyOfBytes(outData)
	a.Equal(map[string]*string{"in.bin": inKey, "out.bin": &outKey}, got.RetrievedPaths)

	wd := common.RemoteWorkPath(client, calc).String()
	landed, ok := fake.ReadFile(path.Join(wd, "in.bin"))
	a.True(ok)
	a.Equal(inData, landed)

	a.Equal(1, fake.Calls("/storage/xfer-external/upload"))
	a.Equal(1, fake.Calls("/storage/xfer-external/download")) // in.bin is already stored, so only out.bin moves
	a.Equal(1, fake.Calls("/storage/xfer-external/invalidate"))
	a.Equal(1, fake.Calls("/utilities/upload")) // the script
	a.Equal(0, fake.Calls("/utilities/download"))
}

func TestEngineTimesOutWaitingForScheduler(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)
	fake.DefaultJobStates = []string{"RUNNING"} // never completes

	client := seedFacadeClient(t, st, fake, 1)
	_, proc := seedJob(t, st, client, jobSeed{
		script: "#!/bin/bash\nsleep forever\n",
		globs:  []string{"*"},
	})

	eng := testEngine(st, Options{PollInterval: 2 * time.Millisecond, JobTimeout: 25 * time.Millisecond})
	a.NoError(eng.RunUnfinished(context.Background(), 10))

	got := reloadProcess(t, st, proc.Pk)
	a.Equal(common.EState.Excepted(), got.State)
	a.Equal(common.EStep.Running(), got.Step)
	a.NotNil(got.JobID)
	if a.NotNil(got.Exception) {
		a.Equal("RuntimeError: timeout waiting for calcjob to finish", *got.Exception)
	}
}

func TestEngineResumesWithoutResubmitting(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)

	client := seedFacadeClient(t, st, fake, 1)
	calc, proc := seedJob(t, st, client, jobSeed{
		script: "#!/bin/bash\nrun\n",
		globs:  []string{"out.txt"},
	})
	fake.OnSubmit = func(jobID, scriptPath string) {
		fake.WriteFile(path.Join(path.Dir(scriptPath), "out.txt"), []byte("all good\n"))
	}

	eng := testEngine(st, Options{})
	a.NoError(eng.RunUnfinished(context.Background(), 10))
	submits := fake.Calls("/compute/jobs/path")
	uploads := fake.Calls("/utilities/upload")
	a.Equal(1, submits)

	// rewind the row as if the runner died while the job was on the cluster
	rewound := reloadProcess(t, st, proc.Pk).Clone()
	rewound.Step = common.EStep.Running()
	rewound.State = common.EState.Playing()
	require.NoError(t, st.UpdateRow(rewound))

	a.NoError(eng.RunUnfinished(context.Background(), 10))

	got := reloadProcess(t, st, proc.Pk)
	a.Equal(common.EState.Finished(), got.State)
	a.Equal(common.EStep.Finalised(), got.Step)
	a.Equal(submits, fake.Calls("/compute/jobs/path"), "resume must not submit again")
	a.Equal(uploads, fake.Calls("/utilities/upload"), "resume must not upload again")

	wantKey := objstore.KeyOfBytes([]byte("all good\n"))
	a.Equal(map[string]*string{"out.txt": &wantKey}, got.RetrievedPaths)
	a.Len(dataNodesOf(t, st, calc.Pk), 1)
}

func TestEngineBadPlaceholderExceptsBeforeRemoteCalls(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)

	client := seedFacadeClient(t, st, fake, 1)
	_, proc := seedJob(t, st, client, jobSeed{
		script: "#!/bin/bash\necho {{calc.missing}}\n",
	})

	eng := testEngine(st, Options{})
	a.NoError(eng.RunUnfinished(context.Background(), 10))

	got := reloadProcess(t, st, proc.Pk)
	a.Equal(common.EState.Excepted(), got.State)
	a.Equal(common.EStep.Uploading(), got.Step)
	if a.NotNil(got.Exception) {
		a.Contains(*got.Exception, "KeyError: ")
		a.Contains(*got.Exception, "missing")
	}
	a.Equal(0, fake.Calls("/utilities/mkdir"), "render failures must precede remote calls")
}

func TestEngineRemoteRejectionIsHTTPError(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)

	client := seedFacadeClient(t, st, fake, 1)
	_, proc := seedJob(t, st, client, jobSeed{script: "#!/bin/bash\nrun\n"})

	// skip straight to submitting: the script was never uploaded, so the
	// scheduler rejects the path
	moved := proc.Clone()
	moved.Step = common.EStep.Submitting()
	require.NoError(t, st.UpdateRow(moved))

	eng := testEngine(st, Options{})
	a.NoError(eng.RunUnfinished(context.Background(), 10))

	got := reloadProcess(t, st, proc.Pk)
	a.Equal(common.EState.Excepted(), got.State)
	a.Equal(common.EStep.Submitting(), got.Step)
	if a.NotNil(got.Exception) {
		a.Contains(*got.Exception, "HTTPError: /compute/jobs/path answered HTTP 400")
	}
}

func TestEngineRetrievalSkipsDirsSymlinksAndScript(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)

	client := seedFacadeClient(t, st, fake, 1)
	calc, proc := seedJob(t, st, client, jobSeed{
		script: "#!/bin/bash\nrun\n",
		globs:  []string{"**"},
	})
	fake.OnSubmit = func(jobID, scriptPath string) {
		dir := path.Dir(scriptPath)
		fake.WriteFile(path.Join(dir, "out.txt"), []byte("hi\n"))
		fake.WriteFile(path.Join(dir, "sub", "inner.dat"), []byte("deep\n"))
		fake.Symlink(path.Join(dir, "link"), "out.txt")
	}

	eng := testEngine(st, Options{})
	a.NoError(eng.RunUnfinished(context.Background(), 10))

	got := reloadProcess(t, st, proc.Pk)
	a.Equal(common.EState.Finished(), got.State)

	hiKey := objstore.KeyOfBytes([]byte("hi\n"))
	deepKey := objstore.KeyOfBytes([]byte("deep\n"))
	a.Equal(map[string]*string{
		"out.txt":       &hiKey,
		"sub":           nil,
		"sub/inner.dat": &deepKey,
	}, got.RetrievedPaths)

	nodes := dataNodesOf(t, st, calc.Pk)
	a.Len(nodes, 1)
	a.Equal([]interface{}{"out.txt", "sub/", "sub/inner.dat"}, nodes[0].Attributes["paths"])
}

func TestRunUnfinishedHonoursLimit(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)

	client := seedFacadeClient(t, st, fake, 1)
	code := &common.Code{Label: "pw", ClientPk: client.Pk, Script: "#!/bin/bash\nrun\n"}
	require.NoError(t, st.SaveRow(code))
	for i := 0; i < 2; i++ {
		require.NoError(t, st.SaveRow(&common.CalcJob{CodePk: code.Pk}))
	}

	eng := testEngine(st, Options{})
	a.NoError(eng.RunUnfinished(context.Background(), 1))

	finished, err := st.CountRows("process", filter.Where("state", filter.EOp.Eq(), "finished"))
	a.NoError(err)
	a.Equal(1, finished)
	playing, err := st.CountRows("process", filter.Where("state", filter.EOp.Eq(), "playing"))
	a.NoError(err)
	a.Equal(1, playing)
}

func TestRunProcessRefusesNonPlayingRows(t *testing.T) {
	a := assert.New(t)
	st := newEngineStore(t)
	fake := newFacade(t)

	client := seedFacadeClient(t, st, fake, 1)
	_, proc := seedJob(t, st, client, jobSeed{script: "#!/bin/bash\nrun\n"})

	paused := proc.Clone()
	paused.State = common.EState.Paused()
	require.NoError(t, st.UpdateRow(paused))

	eng := testEngine(st, Options{})
	err := eng.RunProcess(context.Background(), proc.Pk)
	a.ErrorContains(err, "only playing")

	// unparked rows run normally through the same entry point
	paused.State = common.EState.Playing()
	require.NoError(t, st.UpdateRow(paused))
	a.NoError(eng.RunProcess(context.Background(), proc.Pk))
	a.Equal(common.EState.Finished(), reloadProcess(t, st, proc.Pk).State)
}
