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

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type taskState struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (c *Client) task(ctx context.Context, id string) (taskState, error) {
	var state taskState
	req, err := c.newRequest(ctx, http.MethodGet, "/tasks/"+id, nil, nil)
	if err != nil {
		return state, err
	}
	resp, err := c.session.Do(req)
	if err != nil {
		return state, errors.Wrapf(err, "GET /tasks/%s", id)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "/tasks/"+id, http.StatusOK); err != nil {
		return state, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return state, errors.Wrapf(err, "decode task %s", id)
	}
	return state, nil
}

// ExternalUpload asks the facade to stage an inbound transfer: the file named
// sourceName will appear under targetDir once the caller has POSTed the bytes
// to the signed form and the facade has moved them into place.
func (c *Client) ExternalUpload(ctx context.Context, sourceName, targetDir string) (*ExternalUpload, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	form := url.Values{
		"targetPath": {targetDir},
		"sourcePath": {sourceName},
	}
	if err := c.postForm(ctx, "/storage/xfer-external/upload", form, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, errors.New("facade accepted the upload but returned no task id")
	}
	return &ExternalUpload{c: c, TaskID: out.TaskID}, nil
}

// ExternalUpload tracks one staged inbound transfer.
type ExternalUpload struct {
	c      *Client
	TaskID string

	params *UploadParameters
}

// Parameters fetches the signed object-storage form for this transfer. The
// facade publishes it with the task, so one fetch suffices; the result is
// cached on the handle.
func (u *ExternalUpload) Parameters(ctx context.Context) (*UploadParameters, error) {
	if u.params != nil {
		return u.params, nil
	}
	state, err := u.c.task(ctx, u.TaskID)
	if err != nil {
		return nil, err
	}
	if state.Status != TaskUploadFormReady {
		return nil, errors.Errorf("task %s has no upload form yet (status %s)", u.TaskID, state.Status)
	}
	var data struct {
		Parameters UploadParameters `json:"parameters"`
	}
	if err := json.Unmarshal(state.Data, &data); err != nil {
		return nil, errors.Wrapf(err, "decode upload form of task %s", u.TaskID)
	}
	data.Parameters.URL = u.c.rewriteLocal(data.Parameters.URL)
	u.params = &data.Parameters
	return u.params, nil
}

// InProgress reports whether the facade is still working on the transfer.
// False means the file reached its remote destination.
func (u *ExternalUpload) InProgress(ctx context.Context) (bool, error) {
	state, err := u.c.task(ctx, u.TaskID)
	if err != nil {
		return false, err
	}
	return state.Status != TaskUploadDone, nil
}

// UploadToStaging replays a signed object-storage form with the payload
// attached. The file part goes first so receivers that stream the form can
// start persisting before the trailing fields arrive.
func (c *Client) UploadToStaging(ctx context.Context, params *UploadParameters, filename string, src io.Reader) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return errors.Wrap(err, "build staging form")
	}
	if _, err := io.Copy(part, src); err != nil {
		return errors.Wrapf(err, "read %s", filename)
	}
	for field, value := range params.Data {
		if err := w.WriteField(field, value); err != nil {
			return errors.Wrap(err, "build staging form")
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "build staging form")
	}

	method := params.Method
	if method == "" {
		method = http.MethodPost
	}
	target := params.URL
	if len(params.Params) > 0 {
		query := url.Values{}
		for k, v := range params.Params {
			query.Set(k, v)
		}
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return errors.Wrap(err, "build staging request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.plain.Do(req)
	if err != nil {
		return errors.Wrap(err, "POST staging form")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return checkStatus(resp, "staging upload", http.StatusOK)
	}
	return nil
}

// ExternalDownload asks the facade to stage an outbound transfer of one
// remote file. Poll InProgress until the signed URL is ready, fetch the bytes
// with DownloadFromStaging, then Invalidate the link.
func (c *Client) ExternalDownload(ctx context.Context, sourcePath string) (*ExternalDownload, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	form := url.Values{"sourcePath": {sourcePath}}
	if err := c.postForm(ctx, "/storage/xfer-external/download", form, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, errors.New("facade accepted the download but returned no task id")
	}
	return &ExternalDownload{c: c, TaskID: out.TaskID}, nil
}

// ExternalDownload tracks one staged outbound transfer.
type ExternalDownload struct {
	c      *Client
	TaskID string

	signedURL string
}

// InProgress reports whether the facade is still copying the file out of the
// remote filesystem. Once ready the signed URL is cached on the handle.
func (d *ExternalDownload) InProgress(ctx context.Context) (bool, error) {
	state, err := d.c.task(ctx, d.TaskID)
	if err != nil {
		return false, err
	}
	if state.Status != TaskDownloadReady {
		return true, nil
	}
	if d.signedURL == "" {
		var u string
		if err := json.Unmarshal(state.Data, &u); err != nil {
			return false, errors.Wrapf(err, "decode signed URL of task %s", d.TaskID)
		}
		d.signedURL = d.c.rewriteLocal(u)
	}
	return false, nil
}

// SignedURL returns the staged object's download link. Valid only after
// InProgress has reported false.
func (d *ExternalDownload) SignedURL(ctx context.Context) (string, error) {
	if d.signedURL != "" {
		return d.signedURL, nil
	}
	inProgress, err := d.InProgress(ctx)
	if err != nil {
		return "", err
	}
	if inProgress {
		return "", errors.Errorf("task %s has no signed URL yet", d.TaskID)
	}
	return d.signedURL, nil
}

// Invalidate retires the signed URL so the staged copy cannot be fetched
// again.
func (d *ExternalDownload) Invalidate(ctx context.Context) error {
	form := url.Values{"task_id": {d.TaskID}}
	return d.c.postForm(ctx, "/storage/xfer-external/invalidate", form, http.StatusCreated, nil)
}

// DownloadFromStaging fetches the bytes behind a signed URL. Under local
// testing with a data directory configured, the URL's path is resolved inside
// that directory instead of going over HTTP, which keeps object-storage-less
// demo deployments usable. The caller owns closing the reader.
func (c *Client) DownloadFromStaging(ctx context.Context, signedURL string) (io.ReadCloser, error) {
	if c.localTesting && c.localDataDir != "" {
		u, err := url.Parse(signedURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse signed URL")
		}
		local := filepath.Join(c.localDataDir, filepath.FromSlash(strings.TrimPrefix(u.Path, "/")))
		f, err := os.Open(local)
		if err != nil {
			return nil, errors.Wrapf(err, "open staged copy of %s", u.Path)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build staging request")
	}
	resp, err := c.plain.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "GET staging URL")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, checkStatus(resp, "staging download", http.StatusOK)
	}
	return resp.Body, nil
}
