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

package common

// Row is one persisted entity. Identity is (Table, RowPK); rows handed out by
// the store are frozen and must be cloned before mutation.
type Row interface {
	Table() string
	RowPK() int64
	IsFrozen() bool
	Freeze()
}

// SameRow reports whether two rows denote the same persisted entity.
func SameRow(a, b Row) bool {
	return a.Table() == b.Table() && a.RowPK() == b.RowPK()
}

type rowState struct {
	frozen bool
}

func (r *rowState) Freeze()        { r.frozen = true }
func (r *rowState) IsFrozen() bool { return r.frozen }

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Client holds the connection details of one facade deployment plus the
// machine jobs are run on. The secret lives here too; treat dumps of this
// table accordingly.
type Client struct {
	rowState
	Pk              int64
	Label           string
	ClientURL       string
	ClientID        string
	ClientSecret    string
	TokenURI        string
	MachineName     string
	WorkDir         string
	FSystem         Filesystem
	SmallFileSizeMB int64
}

func (c *Client) Table() string { return "client" }
func (c *Client) RowPK() int64  { return c.Pk }

// WorkPath is the base directory under which job directories are created.
func (c *Client) WorkPath() PurePath {
	return NewPurePath(c.FSystem, c.WorkDir)
}

// ThresholdBytes is the cutoff between in-band and staged transfers. Files of
// exactly this size still go in-band.
func (c *Client) ThresholdBytes() int64 {
	return c.SmallFileSizeMB * 1024 * 1024
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Code is a reusable job template: a script with placeholders plus files laid
// out in every job directory before submission. Values of UploadPaths are
// object-store keys; a nil value creates an empty directory instead.
type Code struct {
	rowState
	Pk          int64
	Label       string
	ClientPk    int64
	Script      string
	UploadPaths map[string]*string
}

func (c *Code) Table() string { return "code" }
func (c *Code) RowPK() int64  { return c.Pk }

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// CalcJob is one concrete run of a Code: parameters for script rendering,
// job-specific files, and the globs deciding what gets pulled back afterwards.
type CalcJob struct {
	rowState
	Pk            int64
	Label         string
	UUID          string
	CodePk        int64
	Parameters    map[string]interface{}
	UploadPaths   map[string]*string
	DownloadGlobs []string
}

func (c *CalcJob) Table() string { return "calcjob" }
func (c *CalcJob) RowPK() int64  { return c.Pk }

// RemoteWorkPath is the job directory on the remote machine: a uuid-named
// directory under the client's work dir, so two jobs never collide.
func RemoteWorkPath(client *Client, calc *CalcJob) PurePath {
	return client.WorkPath().Join("workflows", calc.UUID)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Process is the durable execution record of a CalcJob, advanced step by step
// by the engine. Exactly one exists per CalcJob.
type Process struct {
	rowState
	Pk             int64
	CalcJobPk      int64
	Step           Step
	State          State
	JobID          *string
	Exception      *string
	RetrievedPaths map[string]*string
}

func (p *Process) Table() string { return "process" }
func (p *Process) RowPK() int64  { return p.Pk }

// Clone returns an unfrozen deep copy for mutation by the engine.
func (p *Process) Clone() *Process {
	out := &Process{
		Pk:        p.Pk,
		CalcJobPk: p.CalcJobPk,
		Step:      p.Step,
		State:     p.State,
	}
	if p.JobID != nil {
		jobID := *p.JobID
		out.JobID = &jobID
	}
	if p.Exception != nil {
		exc := *p.Exception
		out.Exception = &exc
	}
	if p.RetrievedPaths != nil {
		out.RetrievedPaths = make(map[string]*string, len(p.RetrievedPaths))
		for k, v := range p.RetrievedPaths {
			if v == nil {
				out.RetrievedPaths[k] = nil
				continue
			}
			val := *v
			out.RetrievedPaths[k] = &val
		}
	}
	return out
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// DataNode is an output record produced when a job finalises. Attributes is
// free-form; the engine stores the retrieved path listing under "paths".
type DataNode struct {
	rowState
	Pk         int64
	CreatorPk  int64
	Attributes map[string]interface{}
}

func (d *DataNode) Table() string { return "data_node" }
func (d *DataNode) RowPK() int64  { return d.Pk }
