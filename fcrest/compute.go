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
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Submit hands an already-uploaded batch script to the scheduler and returns
// the job id it was queued under.
func (c *Client) Submit(ctx context.Context, scriptPath string) (string, error) {
	var out struct {
		JobID string `json:"jobid"`
	}
	form := url.Values{"targetPath": {scriptPath}}
	if err := c.postForm(ctx, "/compute/jobs/path", form, http.StatusCreated, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", errors.New("scheduler accepted the script but returned no job id")
	}
	return out.JobID, nil
}

// Poll fetches the accounting records for the given job ids. Jobs the
// scheduler has no record of (yet) are simply missing from the answer.
func (c *Client) Poll(ctx context.Context, jobIDs []string) ([]JobRecord, error) {
	query := url.Values{"jobs": {strings.Join(jobIDs, ",")}}
	var records []JobRecord
	if err := c.getJSON(ctx, "/compute/acct", query, http.StatusOK, &records); err != nil {
		return nil, err
	}
	return records, nil
}
