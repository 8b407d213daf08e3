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

// Package fcresttest runs an in-process fake of the REST facade so client and
// engine tests exercise real HTTP, token auth, and staged-transfer state
// machines without a deployment. The fake keeps a tiny in-memory filesystem,
// a scripted scheduler, and a signed-URL receiver standing in for object
// storage.
package fcresttest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/crestflow/crestflow/fcrest"
)

const bearerToken = "fcresttest-token"

type entry struct {
	typ    string // "-", "d", "l"
	data   []byte
	target string // symlink target, informational only
}

type job struct {
	script string
	states []string
	idx    int
}

type task struct {
	id        string
	kind      string // "upload" or "download"
	status    string
	targetDir string
	name      string
	staged    []byte
	countdown int
	invalid   bool
}

// Server is the fake facade. Exported fields may be adjusted before the first
// request; everything else is safe for concurrent use.
type Server struct {
	HTTP *httptest.Server

	// DefaultJobStates is the accounting sequence every submitted job walks,
	// one step per poll, sticking at the last entry.
	DefaultJobStates []string

	// StagingDelay holds staged transfers at their intermediate status for
	// this many task polls before completing them.
	StagingDelay int

	// SpillDir, when set, receives a filesystem copy of every staged
	// download under <SpillDir>/v1/receiver/<task-id>, mimicking the demo
	// deployment whose object storage is a host-visible volume.
	SpillDir string

	// OnSubmit runs synchronously when a script is submitted, before the
	// job id is returned. Tests use it to drop output files next to the
	// script.
	OnSubmit func(jobID, scriptPath string)

	mu          sync.Mutex
	fs          map[string]*entry
	jobs        map[string]*job
	tasks       map[string]*task
	calls       map[string]int
	lastMachine string
	nextJob     int
	nextTask    int
}

func NewServer() *Server {
	s := &Server{
		DefaultJobStates: []string{"QUEUED", "RUNNING", "COMPLETED"},
		fs:               map[string]*entry{"/": {typ: "d"}},
		jobs:             map[string]*job{},
		tasks:            map[string]*task{},
		calls:            map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", s.handleToken)
	mux.HandleFunc("/utilities/mkdir", s.authed(s.handleMkdir))
	mux.HandleFunc("/utilities/upload", s.authed(s.handleUpload))
	mux.HandleFunc("/utilities/download", s.authed(s.handleDownload))
	mux.HandleFunc("/utilities/ls", s.authed(s.handleLs))
	mux.HandleFunc("/utilities/stat", s.authed(s.handleStat))
	mux.HandleFunc("/utilities/checksum", s.authed(s.handleChecksum))
	mux.HandleFunc("/compute/jobs/path", s.authed(s.handleSubmit))
	mux.HandleFunc("/compute/acct", s.authed(s.handleAcct))
	mux.HandleFunc("/storage/xfer-external/upload", s.authed(s.handleXferUpload))
	mux.HandleFunc("/storage/xfer-external/download", s.authed(s.handleXferDownload))
	mux.HandleFunc("/storage/xfer-external/invalidate", s.authed(s.handleInvalidate))
	mux.HandleFunc("/tasks/", s.authed(s.handleTask))
	mux.HandleFunc("/v1/receiver/", s.handleReceiver) // signed URLs carry no bearer
	s.HTTP = httptest.NewServer(mux)
	return s
}

func (s *Server) Close() { s.HTTP.Close() }

// ClientConfig returns a Config wired to this fake for the given machine.
func (s *Server) ClientConfig(machine string) fcrest.Config {
	return fcrest.Config{
		BaseURL:      s.HTTP.URL,
		TokenURL:     s.HTTP.URL + "/auth/token",
		ClientID:     "tester",
		ClientSecret: "hunter2",
		MachineName:  machine,
		HTTPClient:   s.HTTP.Client(),
	}
}

// Calls reports how many requests the given endpoint path has served.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastMachine is the most recent X-Machine-Name header seen.
func (s *Server) LastMachine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMachine
}

// MkdirAll creates a directory and its parents in the fake filesystem.
func (s *Server) MkdirAll(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAllLocked(path.Clean(p))
}

// WriteFile plants a regular file, creating parent directories.
func (s *Server) WriteFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean(p)
	s.mkdirAllLocked(path.Dir(p))
	s.fs[p] = &entry{typ: "-", data: append([]byte(nil), data...)}
}

// Symlink plants a symlink entry. The target is reported to ls but never
// resolved; the fake is as shallow as the facade here.
func (s *Server) Symlink(p, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean(p)
	s.mkdirAllLocked(path.Dir(p))
	s.fs[p] = &entry{typ: "l", target: target}
}

// ReadFile returns a file's bytes, or false when it does not exist.
func (s *Server) ReadFile(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fs[path.Clean(p)]
	if !ok || e.typ != "-" {
		return nil, false
	}
	return append([]byte(nil), e.data...), true
}

// Exists reports whether any entry lives at the path.
func (s *Server) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fs[path.Clean(p)]
	return ok
}

// IsDir reports whether the path is a directory.
func (s *Server) IsDir(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fs[path.Clean(p)]
	return ok && e.typ == "d"
}

// JobScript returns the script path a job was submitted with.
func (s *Server) JobScript(jobID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.script
	}
	return ""
}

func (s *Server) mkdirAllLocked(p string) {
	for p != "/" && p != "." && p != "" {
		if _, ok := s.fs[p]; !ok {
			s.fs[p] = &entry{typ: "d"}
		}
		p = path.Dir(p)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, bearerToken)
}

// authed counts the call, records the machine header, and rejects requests
// that skipped the token dance.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		endpoint := r.URL.Path
		if strings.HasPrefix(endpoint, "/tasks/") {
			endpoint = "/tasks/"
		}
		s.calls[endpoint]++
		if m := r.Header.Get("X-Machine-Name"); m != "" {
			s.lastMachine = m
		}
		s.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+bearerToken {
			http.Error(w, "missing or stale token", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func writeOutput(w http.ResponseWriter, status int, output interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"output": output})
}

func writeBare(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notFound(w http.ResponseWriter, p string) {
	w.Header().Set("X-Not-Found", "true")
	http.Error(w, fmt.Sprintf("path %s does not exist", p), http.StatusBadRequest)
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	target := path.Clean(r.PostFormValue("targetPath"))
	parents := r.PostFormValue("parents") == "true"
	s.mu.Lock()
	defer s.mu.Unlock()
	if parent, ok := s.fs[path.Dir(target)]; !ok || parent.typ != "d" {
		if !parents {
			notFound(w, path.Dir(target))
			return
		}
	}
	s.mkdirAllLocked(target)
	writeOutput(w, http.StatusCreated, "")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target := path.Clean(r.FormValue("targetPath"))
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file part", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir, ok := s.fs[target]; !ok || dir.typ != "d" {
		notFound(w, target)
		return
	}
	s.fs[path.Join(target, header.Filename)] = &entry{typ: "-", data: data}
	writeOutput(w, http.StatusCreated, "")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	source := path.Clean(r.URL.Query().Get("sourcePath"))
	s.mu.Lock()
	e, ok := s.fs[source]
	s.mu.Unlock()
	if !ok || e.typ != "-" {
		notFound(w, source)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.data)
}

func (s *Server) handleLs(w http.ResponseWriter, r *http.Request) {
	target := path.Clean(r.URL.Query().Get("targetPath"))
	showHidden := r.URL.Query().Get("showhidden") == "true"
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, ok := s.fs[target]
	if !ok || dir.typ != "d" {
		notFound(w, target)
		return
	}
	records := []fcrest.LsRecord{}
	for p, e := range s.fs {
		if path.Dir(p) != target || p == target {
			continue
		}
		name := path.Base(p)
		if !showHidden && strings.HasPrefix(name, ".") {
			continue
		}
		records = append(records, fcrest.LsRecord{
			Name:         name,
			Type:         e.typ,
			LinkTarget:   e.target,
			User:         "tester",
			Group:        "tester",
			Permissions:  "rwxr-xr-x",
			LastModified: "2024-01-01T00:00:00",
			Size:         int64(len(e.data)),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	writeOutput(w, http.StatusOK, records)
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	target := path.Clean(r.URL.Query().Get("targetPath"))
	s.mu.Lock()
	e, ok := s.fs[target]
	s.mu.Unlock()
	if !ok {
		notFound(w, target)
		return
	}
	mode := int64(644)
	if e.typ == "d" {
		mode = 755
	}
	writeOutput(w, http.StatusOK, fcrest.StatRecord{
		Mode:  mode,
		Ino:   1,
		Dev:   1,
		Nlink: 1,
		UID:   1000,
		GID:   1000,
		Size:  int64(len(e.data)),
		Atime: 1704067200,
		Ctime: 1704067200,
		Mtime: 1704067200,
	})
}

func (s *Server) handleChecksum(w http.ResponseWriter, r *http.Request) {
	target := path.Clean(r.URL.Query().Get("targetPath"))
	s.mu.Lock()
	e, ok := s.fs[target]
	s.mu.Unlock()
	if !ok || e.typ != "-" {
		notFound(w, target)
		return
	}
	sum := sha256.Sum256(e.data)
	writeOutput(w, http.StatusOK, hex.EncodeToString(sum[:]))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	script := path.Clean(r.PostFormValue("targetPath"))
	s.mu.Lock()
	e, ok := s.fs[script]
	if !ok || e.typ != "-" {
		s.mu.Unlock()
		notFound(w, script)
		return
	}
	s.nextJob++
	id := fmt.Sprintf("%d", 7000+s.nextJob)
	s.jobs[id] = &job{script: script, states: append([]string(nil), s.DefaultJobStates...)}
	hook := s.OnSubmit
	s.mu.Unlock()

	if hook != nil {
		hook(id, script)
	}
	writeBare(w, http.StatusCreated, map[string]string{"jobid": id})
}

func (s *Server) handleAcct(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("jobs"), ",")
	s.mu.Lock()
	defer s.mu.Unlock()
	records := []fcrest.JobRecord{}
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok {
			continue
		}
		records = append(records, fcrest.JobRecord{
			JobID:     id,
			Name:      path.Base(j.script),
			Partition: "normal",
			State:     j.states[j.idx],
			User:      "tester",
		})
		if j.idx < len(j.states)-1 {
			j.idx++
		}
	}
	writeOutput(w, http.StatusOK, records)
}

func (s *Server) handleXferUpload(w http.ResponseWriter, r *http.Request) {
	targetDir := path.Clean(r.PostFormValue("targetPath"))
	name := r.PostFormValue("sourcePath")
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir, ok := s.fs[targetDir]; !ok || dir.typ != "d" {
		notFound(w, targetDir)
		return
	}
	s.nextTask++
	id := fmt.Sprintf("task-%d", s.nextTask)
	s.tasks[id] = &task{
		id:        id,
		kind:      "upload",
		status:    fcrest.TaskUploadFormReady,
		targetDir: targetDir,
		name:      path.Base(name),
	}
	writeBare(w, http.StatusCreated, map[string]string{"task_id": id})
}

func (s *Server) handleXferDownload(w http.ResponseWriter, r *http.Request) {
	source := path.Clean(r.PostFormValue("sourcePath"))
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fs[source]
	if !ok || e.typ != "-" {
		notFound(w, source)
		return
	}
	s.nextTask++
	id := fmt.Sprintf("task-%d", s.nextTask)
	s.tasks[id] = &task{
		id:        id,
		kind:      "download",
		status:    fcrest.TaskDownloadStaging,
		staged:    append([]byte(nil), e.data...),
		countdown: s.StagingDelay,
	}
	writeBare(w, http.StatusCreated, map[string]string{"task_id": id})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id := r.PostFormValue("task_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		http.Error(w, "unknown task", http.StatusBadRequest)
		return
	}
	t.invalid = true
	t.status = fcrest.TaskDownloadExpired
	writeOutput(w, http.StatusCreated, "")
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/tasks/")
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		http.Error(w, "unknown task", http.StatusNotFound)
		return
	}
	s.advanceLocked(t)

	var data interface{}
	switch {
	case t.kind == "upload" && t.status == fcrest.TaskUploadFormReady:
		data = map[string]interface{}{
			"parameters": fcrest.UploadParameters{
				URL:    s.HTTP.URL + "/v1/receiver/" + t.id,
				Method: http.MethodPost,
				Data:   map[string]string{"key": t.name},
			},
		}
	case t.kind == "download" && t.status == fcrest.TaskDownloadReady:
		data = s.HTTP.URL + "/v1/receiver/" + t.id
	}
	writeBare(w, http.StatusOK, map[string]interface{}{
		"task_id": t.id,
		"status":  t.status,
		"data":    data,
	})
}

// advanceLocked steps a task's lifecycle on each poll once its countdown is
// spent.
func (s *Server) advanceLocked(t *task) {
	switch {
	case t.kind == "upload" && t.status == fcrest.TaskUploadOngoing:
		if t.countdown > 0 {
			t.countdown--
			return
		}
		s.mkdirAllLocked(t.targetDir)
		s.fs[path.Join(t.targetDir, t.name)] = &entry{typ: "-", data: t.staged}
		t.status = fcrest.TaskUploadDone
	case t.kind == "download" && t.status == fcrest.TaskDownloadStaging:
		if t.countdown > 0 {
			t.countdown--
			return
		}
		t.status = fcrest.TaskDownloadReady
		s.spill(t)
	}
}

// spill mirrors staged download bytes onto the host filesystem for
// local-testing swaps.
func (s *Server) spill(t *task) {
	if s.SpillDir == "" {
		return
	}
	dir := filepath.Join(s.SpillDir, "v1", "receiver")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, t.id), t.staged, 0o644)
}

func (s *Server) handleReceiver(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/receiver/")
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown task", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file part", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		t.staged = data
		t.countdown = s.StagingDelay
		t.status = fcrest.TaskUploadOngoing
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		s.mu.Lock()
		invalid := t.invalid || t.status != fcrest.TaskDownloadReady
		data := t.staged
		s.mu.Unlock()
		if invalid {
			http.Error(w, "link expired", http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
