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
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Mkdir creates a directory on the remote machine. With parents set the
// facade behaves like mkdir -p.
func (c *Client) Mkdir(ctx context.Context, targetPath string, parents bool) error {
	form := url.Values{"targetPath": {targetPath}}
	if parents {
		form.Set("parents", "true")
	}
	return c.postForm(ctx, "/utilities/mkdir", form, http.StatusCreated, nil)
}

// SimpleUpload sends one blocking multipart upload through the facade
// itself. Only small payloads belong here; anything above the machine's
// threshold goes through ExternalUpload.
func (c *Client) SimpleUpload(ctx context.Context, src io.Reader, targetDir, filename string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return errors.Wrap(err, "build upload form")
	}
	if _, err := io.Copy(part, src); err != nil {
		return errors.Wrapf(err, "read %s", filename)
	}
	if err := w.WriteField("targetPath", targetDir); err != nil {
		return errors.Wrap(err, "build upload form")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "build upload form")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/utilities/upload", nil, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.session.Do(req)
	if err != nil {
		return errors.Wrap(err, "POST /utilities/upload")
	}
	defer resp.Body.Close()
	return checkStatus(resp, "/utilities/upload", http.StatusCreated)
}

// SimpleDownload streams a small remote file into dst.
func (c *Client) SimpleDownload(ctx context.Context, sourcePath string, dst io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/utilities/download", url.Values{"sourcePath": {sourcePath}}, nil)
	if err != nil {
		return err
	}
	resp, err := c.session.Do(req)
	if err != nil {
		return errors.Wrap(err, "GET /utilities/download")
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "/utilities/download", http.StatusOK); err != nil {
		return err
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return errors.Wrapf(err, "download %s", sourcePath)
	}
	return nil
}

// ListFiles returns the entries of one remote directory, non-recursively.
func (c *Client) ListFiles(ctx context.Context, targetPath string, showHidden bool) ([]LsRecord, error) {
	query := url.Values{"targetPath": {targetPath}}
	if showHidden {
		query.Set("showhidden", "true")
	}
	var records []LsRecord
	if err := c.getJSON(ctx, "/utilities/ls", query, http.StatusOK, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Stat runs stat(2) on one remote path. A missing path surfaces as a
// StatusError whose NotFound flag is set; use IsNotFound to tell it apart
// from transport trouble.
func (c *Client) Stat(ctx context.Context, targetPath string) (StatRecord, error) {
	var record StatRecord
	query := url.Values{"targetPath": {targetPath}}
	err := c.getJSON(ctx, "/utilities/stat", query, http.StatusOK, &record)
	return record, err
}

// Checksum returns the SHA-256 digest of one remote file as lowercase hex.
func (c *Client) Checksum(ctx context.Context, targetPath string) (string, error) {
	var digest string
	query := url.Values{"targetPath": {targetPath}}
	if err := c.getJSON(ctx, "/utilities/checksum", query, http.StatusOK, &digest); err != nil {
		return "", err
	}
	return digest, nil
}
