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
	"fmt"
	"sort"
	"strings"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/remotefs"
	"github.com/pkg/errors"
)

// runStep performs the work of the process's current step and advances the
// step marker on success. On error the marker is left alone, so the row
// records the step that failed.
func (e *Engine) runStep(ctx context.Context, w *jobContext) error {
	proc := w.proc
	switch proc.Step {
	case common.EStep.Created():
		proc.Step = common.EStep.Uploading()

	case common.EStep.Uploading():
		if err := e.uploadInputs(ctx, w); err != nil {
			return err
		}
		proc.Step = common.EStep.Submitting()
		common.Report(e.logger, proc.Pk, "uploaded job directory %s", w.work.String())

	case common.EStep.Submitting():
		jobID, err := w.fc.Submit(ctx, w.scriptPath())
		if err != nil {
			return err
		}
		proc.JobID = &jobID
		proc.Step = common.EStep.Running()
		common.Report(e.logger, proc.Pk, "submitted as scheduler job %s", jobID)

	case common.EStep.Running():
		if proc.JobID == nil {
			return errors.Errorf("process %d is at step running but has no job id", proc.Pk)
		}
		if err := e.waitForJob(ctx, w, *proc.JobID); err != nil {
			return err
		}
		proc.Step = common.EStep.Retrieving()
		common.Report(e.logger, proc.Pk, "scheduler job %s completed", *proc.JobID)

	case common.EStep.Retrieving():
		retrieved, err := e.retrieveOutputs(ctx, w)
		if err != nil {
			return err
		}
		proc.RetrievedPaths = retrieved
		proc.Step = common.EStep.Finalised()
		common.Report(e.logger, proc.Pk, "retrieved %d paths", len(retrieved))

	default:
		return errors.Errorf("process %d is at unexpected step %s", proc.Pk, proc.Step)
	}
	return nil
}

// uploadInputs builds the remote job directory: the rendered script first,
// then the code's files, then the calcjob's, so job-specific files win name
// clashes. The script is rendered before anything touches the remote; a bad
// placeholder never leaves a half-built directory behind.
func (e *Engine) uploadInputs(ctx context.Context, w *jobContext) error {
	script, err := renderScript(w.code.Script, w.client, w.code, w.calc)
	if err != nil {
		return err
	}
	if err := w.fc.Mkdir(ctx, w.work.String(), true); err != nil {
		return err
	}
	if err := w.fc.SimpleUpload(ctx, strings.NewReader(script), w.work.String(), ScriptFileName); err != nil {
		return err
	}
	for _, batch := range []map[string]*string{w.code.UploadPaths, w.calc.UploadPaths} {
		for _, rel := range sortedKeys(batch) {
			if err := e.placeInput(ctx, w, rel, batch[rel]); err != nil {
				return err
			}
		}
	}
	return nil
}

// placeInput materialises one upload-path entry in the job directory: a
// directory for a nil key, otherwise the stored object, creating intermediate
// directories for nested relative paths on the way.
func (e *Engine) placeInput(ctx context.Context, w *jobContext, rel string, key *string) error {
	target := w.work.Join(rel)
	if key == nil {
		return w.fc.Mkdir(ctx, target.String(), true)
	}
	parent := target.Parent()
	if parent.String() != w.work.String() {
		if err := w.fc.Mkdir(ctx, parent.String(), true); err != nil {
			return err
		}
	}
	return e.uploadObject(ctx, w, *key, parent.String(), target.Name())
}

// uploadObject sends one stored object to the remote. Objects at or below the
// client's threshold go in-band through the facade; larger ones take the
// staged route through external object storage.
func (e *Engine) uploadObject(ctx context.Context, w *jobContext, key, targetDir, filename string) error {
	size, err := e.store.Objects().Size(key)
	if err != nil {
		return err
	}
	src, err := e.store.Objects().Open(key)
	if err != nil {
		return err
	}
	defer src.Close()

	if size <= w.client.ThresholdBytes() {
		return w.fc.SimpleUpload(ctx, src, targetDir, filename)
	}

	up, err := w.fc.ExternalUpload(ctx, filename, targetDir)
	if err != nil {
		return err
	}
	params, err := up.Parameters(ctx)
	if err != nil {
		return err
	}
	if err := w.fc.UploadToStaging(ctx, params, filename, src); err != nil {
		return err
	}
	return e.waitTransfer(ctx, func(ctx context.Context) (bool, error) {
		inProgress, err := up.InProgress(ctx)
		return !inProgress, err
	})
}

func (e *Engine) waitTransfer(ctx context.Context, settled func(context.Context) (bool, error)) error {
	return waitUntil(ctx, e.pollInterval, e.transferTimeout, "timeout waiting for object transfer", settled)
}

// waitForJob polls scheduler accounting until the job reports COMPLETED.
// Anything else, including the job not showing up in accounting yet, keeps
// the poll going until the timeout.
func (e *Engine) waitForJob(ctx context.Context, w *jobContext, jobID string) error {
	return waitUntil(ctx, e.pollInterval, e.jobTimeout, "timeout waiting for calcjob to finish", func(ctx context.Context) (bool, error) {
		records, err := w.fc.Poll(ctx, []string{jobID})
		if err != nil {
			return false, err
		}
		for _, rec := range records {
			if rec.JobID == jobID && rec.State == "COMPLETED" {
				return true, nil
			}
		}
		return false, nil
	})
}

// retrieveOutputs pulls everything matching the calcjob's download globs into
// the object store and returns the relative-path-to-key map persisted on the
// process. Directory matches map to nil keys; symlinks and other non-regular
// entries are skipped, as is the job script. A file whose remote checksum is
// already a stored key is recorded without downloading it again.
func (e *Engine) retrieveOutputs(ctx context.Context, w *jobContext) (map[string]*string, error) {
	root := remotefs.NewPath(w.fc, w.work.String())
	retrieved := make(map[string]*string)
	for _, pattern := range w.calc.DownloadGlobs {
		matches, err := remotefs.Glob(ctx, root, pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			rel, err := common.NewPurePath(w.client.FSystem, match.String()).RelativeTo(w.work)
			if err != nil {
				return nil, err
			}
			if rel == "" || rel == ScriptFileName {
				continue
			}
			if _, ok := retrieved[rel]; ok {
				continue
			}
			if isDir, err := match.IsDir(ctx); err != nil {
				return nil, err
			} else if isDir {
				retrieved[rel] = nil
				continue
			}
			if isFile, err := match.IsFile(ctx); err != nil {
				return nil, err
			} else if !isFile {
				continue
			}
			key, err := e.pullFile(ctx, w, match)
			if err != nil {
				return nil, err
			}
			retrieved[rel] = &key
		}
	}
	return retrieved, nil
}

func (e *Engine) pullFile(ctx context.Context, w *jobContext, match *remotefs.Path) (string, error) {
	remoteSum, err := w.fc.Checksum(ctx, match.String())
	if err != nil {
		return "", err
	}
	if ok, err := e.store.Objects().Contains(remoteSum); err != nil {
		return "", err
	} else if ok {
		return remoteSum, nil
	}
	size, err := match.Size(ctx)
	if err != nil {
		return "", err
	}
	var key string
	if size <= w.client.ThresholdBytes() {
		var buf bytes.Buffer
		if err := w.fc.SimpleDownload(ctx, match.String(), &buf); err != nil {
			return "", err
		}
		if key, err = e.store.Objects().AddFromBytes(buf.Bytes()); err != nil {
			return "", err
		}
	} else {
		if key, err = e.pullStaged(ctx, w, match.String()); err != nil {
			return "", err
		}
	}
	if key != remoteSum {
		return "", &integrityError{msg: fmt.Sprintf("%s hashed to %s but the remote reported checksum %s", match.String(), key, remoteSum)}
	}
	return key, nil
}

// pullStaged fetches one file over the staged route: ask the facade to move
// it to external storage, poll the task until the signed URL is ready, fetch
// the bytes and invalidate the link.
func (e *Engine) pullStaged(ctx context.Context, w *jobContext, sourcePath string) (string, error) {
	down, err := w.fc.ExternalDownload(ctx, sourcePath)
	if err != nil {
		return "", err
	}
	err = e.waitTransfer(ctx, func(ctx context.Context) (bool, error) {
		inProgress, err := down.InProgress(ctx)
		return !inProgress, err
	})
	if err != nil {
		return "", err
	}
	signedURL, err := down.SignedURL(ctx)
	if err != nil {
		return "", err
	}
	body, err := w.fc.DownloadFromStaging(ctx, signedURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	key, err := e.store.Objects().AddFromReader(body)
	if err != nil {
		return "", err
	}
	if err := down.Invalidate(ctx); err != nil {
		return "", err
	}
	return key, nil
}

func sortedKeys(m map[string]*string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
