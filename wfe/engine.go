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

// Package wfe advances processes through their remote lifecycle: render and
// upload the job directory, submit the script, poll the scheduler, pull the
// outputs back into the object store. Every step transition is persisted
// before the next one starts, so a runner killed mid-job resumes exactly
// where the last run stopped instead of re-uploading or re-submitting.
package wfe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/fcrest"
	"github.com/crestflow/crestflow/filter"
	"github.com/crestflow/crestflow/store"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// ScriptFileName is what the rendered script is called inside every remote
// job directory.
const ScriptFileName = "job.sh"

const (
	defaultMaxParallel     = 4
	defaultJobTimeout      = 10 * time.Minute
	defaultTransferTimeout = 5 * time.Minute
)

// Options tunes an Engine. The zero value is usable: a nil logger silences
// reporting and every duration falls back to its default.
type Options struct {
	Logger common.ILogger

	// PollInterval spaces scheduler and transfer-task polls. Defaults to
	// CRESTFLOW_POLL_INTERVAL.
	PollInterval time.Duration
	// JobTimeout bounds how long a submitted job may stay unfinished.
	JobTimeout time.Duration
	// TransferTimeout bounds how long one staged object transfer may take.
	TransferTimeout time.Duration
	// MaxParallel bounds how many processes are advanced at once.
	MaxParallel int

	// LocalTesting rewrites the demo cluster's signed URLs to localhost, and
	// LocalDataDir, when additionally set, swaps staged downloads for local
	// file reads. Test-rig knobs; see fcrest.Config.
	LocalTesting bool
	LocalDataDir string
}

// Engine runs processes against their client's facade. Safe for use by a
// single RunUnfinished call at a time; the runner process is expected to hold
// an exclusive lock on the project anyway.
type Engine struct {
	store           *store.Store
	logger          common.ILogger
	pollInterval    time.Duration
	jobTimeout      time.Duration
	transferTimeout time.Duration
	maxParallel     int
	localTesting    bool
	localDataDir    string

	mu      sync.Mutex
	clients map[int64]*fcrest.Client // keyed by client pk
}

func NewEngine(st *store.Store, opts Options) *Engine {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
		if d, err := time.ParseDuration(common.GetEnvironmentVariable(common.EEnvironmentVariable.PollInterval())); err == nil && d > 0 {
			interval = d
		}
	}
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	transferTimeout := opts.TransferTimeout
	if transferTimeout <= 0 {
		transferTimeout = defaultTransferTimeout
	}
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Engine{
		store:           st,
		logger:          opts.Logger,
		pollInterval:    interval,
		jobTimeout:      jobTimeout,
		transferTimeout: transferTimeout,
		maxParallel:     maxParallel,
		localTesting:    opts.LocalTesting,
		localDataDir:    opts.LocalDataDir,
		clients:         make(map[int64]*fcrest.Client),
	}
}

// RunUnfinished picks up to limit playing processes, oldest first, and
// advances each until it finishes or excepts. At most MaxParallel run at
// once. Per-process failures are recorded on the process rows, not returned;
// the error covers only picking work up and context cancellation.
func (e *Engine) RunUnfinished(ctx context.Context, limit int) error {
	procs, err := store.IterRowsAs[*common.Process](e.store, 1, limit,
		filter.Where("state", filter.EOp.Eq(), common.EState.Playing().String()))
	if err != nil {
		return err
	}
	if len(procs) == 0 {
		if e.logger != nil && e.logger.ShouldLog(common.ELogLevel.Info()) {
			e.logger.Log(common.ELogLevel.Info(), "no playing processes to pick up")
		}
		return nil
	}

	sem := semaphore.NewWeighted(int64(e.maxParallel))
	var wg sync.WaitGroup
	var acquireErr error
	for _, frozen := range procs {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		wg.Add(1)
		go func(frozen *common.Process) {
			defer wg.Done()
			defer sem.Release(1)
			e.runProcess(ctx, frozen)
		}(frozen)
	}
	wg.Wait()
	return acquireErr
}

// RunProcess advances the single given process until it finishes or excepts.
// The outcome lands on the process row; read it back for the verdict.
func (e *Engine) RunProcess(ctx context.Context, pk int64) error {
	frozen, err := store.GetRowAs[*common.Process](e.store, pk)
	if err != nil {
		return err
	}
	if frozen.State != common.EState.Playing() {
		return errors.Errorf("process %d is %s, only playing processes can run", pk, frozen.State)
	}
	e.runProcess(ctx, frozen)
	return nil
}

// jobContext bundles everything one process needs resolved once: its rows,
// the facade client and the remote job directory.
type jobContext struct {
	proc   *common.Process
	calc   *common.CalcJob
	code   *common.Code
	client *common.Client
	fc     *fcrest.Client
	work   common.PurePath
}

func (w *jobContext) scriptPath() string {
	return w.work.Join(ScriptFileName).String()
}

func (e *Engine) newJobContext(frozen *common.Process) (*jobContext, error) {
	calc, err := store.GetRowAs[*common.CalcJob](e.store, frozen.CalcJobPk)
	if err != nil {
		return nil, err
	}
	code, err := store.GetRowAs[*common.Code](e.store, calc.CodePk)
	if err != nil {
		return nil, err
	}
	client, err := store.GetRowAs[*common.Client](e.store, code.ClientPk)
	if err != nil {
		return nil, err
	}
	return &jobContext{
		proc:   frozen.Clone(),
		calc:   calc,
		code:   code,
		client: client,
		fc:     e.clientFor(client),
		work:   common.RemoteWorkPath(client, calc),
	}, nil
}

// clientFor returns the facade client for a client row, creating it on first
// use. Processes sharing a client share its token session.
func (e *Engine) clientFor(client *common.Client) *fcrest.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fc, ok := e.clients[client.Pk]; ok {
		return fc
	}
	fc := fcrest.NewClient(fcrest.Config{
		BaseURL:      client.ClientURL,
		TokenURL:     client.TokenURI,
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		MachineName:  client.MachineName,
		LocalTesting: e.localTesting,
		LocalDataDir: e.localDataDir,
	})
	e.clients[client.Pk] = fc
	return fc
}

func (e *Engine) runProcess(ctx context.Context, frozen *common.Process) {
	w, err := e.newJobContext(frozen)
	if err != nil {
		// Row lookups failed; all we can do is mark the process.
		e.except(frozen.Clone(), err)
		return
	}
	proc := w.proc
	common.Report(e.logger, proc.Pk, "picked up calcjob %q at step %s", w.calc.Label, proc.Step)

	for proc.State == common.EState.Playing() && proc.Step != common.EStep.Finalised() {
		if err := e.runStep(ctx, w); err != nil {
			e.except(proc, err)
			return
		}
		if err := e.store.UpdateRow(proc); err != nil {
			e.logError(proc.Pk, err)
			return
		}
	}
	if proc.Step != common.EStep.Finalised() {
		return
	}
	if err := e.saveOutputNode(w); err != nil {
		e.except(proc, err)
		return
	}
	proc.State = common.EState.Finished()
	if err := e.store.UpdateRow(proc); err != nil {
		e.logError(proc.Pk, err)
		return
	}
	common.Report(e.logger, proc.Pk, "finished, %d paths retrieved", len(proc.RetrievedPaths))
}

// except parks the process with its exception string. The step is left at
// whatever was last persisted, so the failure site survives in the row.
func (e *Engine) except(proc *common.Process, err error) {
	msg := exceptionString(err)
	proc.State = common.EState.Excepted()
	proc.Exception = &msg
	if uerr := e.store.UpdateRow(proc); uerr != nil {
		e.logError(proc.Pk, uerr)
		return
	}
	common.Report(e.logger, proc.Pk, "excepted at step %s: %s", proc.Step, msg)
}

func (e *Engine) logError(pk int64, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Log(common.ELogLevel.Error(), fmt.Sprintf("PK-%d: %v", pk, err))
}

// saveOutputNode records the retrieved paths as a data node attached to the
// calcjob. Directories carry a trailing slash in the listing. A run that
// crashed between saving the node and persisting the finished state resumes
// here, so an existing node for this calcjob is kept rather than duplicated.
func (e *Engine) saveOutputNode(w *jobContext) error {
	existing, err := e.store.CountRows("data_node",
		filter.Where("creator_pk", filter.EOp.Eq(), w.calc.Pk))
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	paths := make([]interface{}, 0, len(w.proc.RetrievedPaths))
	for _, rel := range sortedKeys(w.proc.RetrievedPaths) {
		if w.proc.RetrievedPaths[rel] == nil {
			rel += "/"
		}
		paths = append(paths, rel)
	}
	node := &common.DataNode{
		CreatorPk:  w.calc.Pk,
		Attributes: map[string]interface{}{"paths": paths},
	}
	return e.store.SaveRow(node)
}
