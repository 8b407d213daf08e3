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

package fcrest

// Staged-transfer task statuses as the facade reports them. Uploads walk
// 111 -> 114 -> 115, downloads 116 -> 117, and 118 marks an invalidated
// download URL.
const (
	TaskUploadFormReady = "111" // signed upload form available
	TaskUploadOngoing   = "114" // server moving the staged file onward
	TaskUploadDone      = "115" // file landed on the remote filesystem
	TaskDownloadStaging = "116" // server copying out of the filesystem
	TaskDownloadReady   = "117" // signed download URL available
	TaskDownloadExpired = "118" // URL invalidated
)

// LsRecord is one directory entry as returned by the ls endpoint. The facade
// serializes sizes as decimal strings.
type LsRecord struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	LinkTarget   string `json:"link_target"`
	User         string `json:"user"`
	Group        string `json:"group"`
	Permissions  string `json:"permissions"`
	LastModified string `json:"last_modified"`
	Size         int64  `json:"size,string"`
}

// StatRecord mirrors the fields of a stat(2) call routed through the facade.
// Mode carries permission bits only, stripped of the type bits, so a stat
// can never reveal what kind of entry a path is; type discovery has to go
// through ls on the parent directory.
type StatRecord struct {
	Mode  int64 `json:"mode"`
	Ino   int64 `json:"ino"`
	Dev   int64 `json:"dev"`
	Nlink int64 `json:"nlink"`
	UID   int64 `json:"uid"`
	GID   int64 `json:"gid"`
	Size  int64 `json:"size"`
	Atime int64 `json:"atime"`
	Ctime int64 `json:"ctime"`
	Mtime int64 `json:"mtime"`
}

// JobRecord is one scheduler accounting row.
type JobRecord struct {
	JobID     string `json:"jobid"`
	Name      string `json:"name"`
	NodeList  string `json:"nodelist"`
	Nodes     string `json:"nodes"`
	Partition string `json:"partition"`
	StartTime string `json:"start_time"`
	State     string `json:"state"`
	Time      string `json:"time"`
	TimeLeft  string `json:"time_left"`
	User      string `json:"user"`
}

// UploadParameters describes the signed object-storage form a staged upload
// must be POSTed with. The facade builds it server-side; the client replays
// it verbatim apart from the local-testing host rewrite.
type UploadParameters struct {
	URL     string                 `json:"url"`
	Method  string                 `json:"method"`
	Data    map[string]string      `json:"data"`
	Headers map[string]string      `json:"headers"`
	JSON    map[string]interface{} `json:"json"`
	Params  map[string]string      `json:"params"`
}
