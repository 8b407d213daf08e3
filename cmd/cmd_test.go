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

package cmd

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/fcrest"
	"github.com/crestflow/crestflow/fcrest/fcresttest"
	"github.com/crestflow/crestflow/filter"
	"github.com/crestflow/crestflow/objstore"
	"github.com/crestflow/crestflow/store"
)

// runCLI executes one invocation against the shared command tree. Flag values
// stick to the package-level commands between Execute calls, so everything is
// reset to defaults first; each invocation then stands alone like a real one.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// projectYAML is a small but complete batch: one inline object, one client,
// one code and two calcjobs.
func projectYAML(clientURL, tokenURI string) string {
	return fmt.Sprintf(`objects:
  input:
    content: hello world
clients:
  - label: alps
    client_url: %s
    client_id: svc
    client_secret: hunter2
    token_uri: %s
    machine_name: daint
    work_dir: /scratch/svc
codes:
  - label: pw
    client_label: alps
    script: echo hi
calcjobs:
  - label: run1
    code_label: pw
    upload_paths:
      in.dat: {label: input}
  - label: run2
    code_label: pw
`, clientURL, tokenURI)
}

func initedProject(t *testing.T, yaml string) string {
	t.Helper()
	project := filepath.Join(t.TempDir(), "proj")
	args := []string{"init", "-p", project}
	if yaml != "" {
		args = append(args, "--add", yaml)
	}
	out, err := runCLI(t, "", args...)
	require.NoError(t, err, out)
	return project
}

func TestInitAddStatusRoundTrip(t *testing.T) {
	a := assert.New(t)

	yaml := writeYAML(t, projectYAML("https://api.example.org", "https://auth.example.org/token"))
	project := filepath.Join(t.TempDir(), "proj")

	out, err := runCLI(t, "", "init", "-p", project, "--add", yaml)
	a.NoError(err)
	a.Contains(out, "Storage initialised: "+project)
	a.Contains(out, "Added clients: 1")
	a.Contains(out, "Added codes: 1")
	a.Contains(out, "Added calcjobs: 1, 2")

	out, err = runCLI(t, "", "status", "-p", project)
	a.NoError(err)
	a.Equal(`Object Store:
- 1 object
Database:
- 1 client
- 1 code
- 2 calcjobs
  - 2 playing
`, out)

	// init is idempotent about the directory and keeps existing rows
	out, err = runCLI(t, "", "init", "-p", project)
	a.NoError(err)
	a.Contains(out, "Storage initialised")
	out, err = runCLI(t, "", "status", "-p", project)
	a.NoError(err)
	a.Contains(out, "- 2 calcjobs")
}

func TestCommandsRefuseUninitialisedProjects(t *testing.T) {
	a := assert.New(t)

	missing := filepath.Join(t.TempDir(), "nowhere")
	yaml := writeYAML(t, projectYAML("https://api.example.org", "https://auth.example.org/token"))

	_, err := runCLI(t, "", "add", "-p", missing, yaml)
	a.Error(err)
	a.Contains(err.Error(), "crestflow init")
	a.Equal(common.EExitCode.UserError(), exitCodeFor(err))

	_, err = runCLI(t, "", "status", "-p", missing)
	a.Error(err)
}

func TestClientCreateShowListDelete(t *testing.T) {
	a := assert.New(t)
	project := initedProject(t, "")

	out, err := runCLI(t, "", "client", "create", "-p", project,
		"--label", "alps",
		"--client-url", "https://api.example.org",
		"--client-id", "svc",
		"--client-secret", "hunter2",
		"--token-uri", "https://auth.example.org/token",
		"--machine-name", "daint",
		"--work-dir", "/scratch/svc")
	a.NoError(err)
	a.Contains(out, "Created client 1 (alps)")

	out, err = runCLI(t, "", "client", "show", "-p", project, "1")
	a.NoError(err)
	a.Contains(out, "label:")
	a.Contains(out, "alps")
	a.Contains(out, "REDACTED")
	a.NotContains(out, "hunter2")

	out, err = runCLI(t, "", "client", "show", "-p", project, "1", "--show-sensitive")
	a.NoError(err)
	a.Contains(out, "hunter2")

	out, err = runCLI(t, "", "client", "list", "-p", project)
	a.NoError(err)
	a.Contains(out, "Clients 1-1 of 1")
	a.Contains(out, "alps")
	a.Contains(out, "daint")

	out, err = runCLI(t, "", "client", "delete", "-p", project, "1", "--yes")
	a.NoError(err)
	a.Contains(out, "Deleted client 1")

	out, err = runCLI(t, "", "client", "list", "-p", project)
	a.NoError(err)
	a.Contains(out, "No clients to list")
}

func TestClientCreateValidatesItsFlags(t *testing.T) {
	a := assert.New(t)
	project := initedProject(t, "")

	_, err := runCLI(t, "", "client", "create", "-p", project, "--label", "alps")
	a.Error(err)
	a.Contains(err.Error(), "--client-url")

	_, err = runCLI(t, "", "client", "create", "-p", project,
		"--client-url", "https://api.example.org",
		"--client-id", "svc",
		"--client-secret", "hunter2",
		"--token-uri", "https://auth.example.org/token",
		"--machine-name", "daint",
		"--work-dir", "/scratch/svc",
		"--fsystem", "vms")
	a.Error(err)
	a.Contains(err.Error(), "--fsystem")
}

func TestDeletePromptAndReferencedRows(t *testing.T) {
	a := assert.New(t)

	yaml := writeYAML(t, projectYAML("https://api.example.org", "https://auth.example.org/token"))
	project := initedProject(t, yaml)

	// answering anything but y keeps the row
	_, err := runCLI(t, "n\n", "client", "delete", "-p", project, "1")
	a.Error(err)
	a.Contains(err.Error(), "deletion cancelled")

	// the code still references the client, so the store refuses
	_, err = runCLI(t, "y\n", "client", "delete", "-p", project, "1")
	a.Error(err)
	a.Equal(common.EExitCode.UserError(), exitCodeFor(err))

	out, err := runCLI(t, "", "client", "list", "-p", project)
	a.NoError(err)
	a.Contains(out, "alps")

	// unknown pks fail before the prompt
	_, err = runCLI(t, "", "code", "delete", "-p", project, "99", "--yes")
	a.Error(err)
	a.Equal(common.EExitCode.UserError(), exitCodeFor(err))
}

func TestCalcjobListAndTree(t *testing.T) {
	a := assert.New(t)

	yaml := writeYAML(t, projectYAML("https://api.example.org", "https://auth.example.org/token"))
	project := initedProject(t, yaml)

	out, err := runCLI(t, "", "calcjob", "list", "-p", project)
	a.NoError(err)
	a.Contains(out, "Calcjobs 1-2 of 2")
	a.Contains(out, "run1")
	a.Contains(out, "run2")
	a.Contains(out, "playing")
	a.Contains(out, "created")
	a.Contains(out, "1 (pw)")

	out, err = runCLI(t, "", "calcjob", "tree", "-p", project)
	a.NoError(err)
	a.Equal(`Calcjobs 1-2 of 2
1 - alps
  1 - pw
    1 - run1 (playing)
    2 - run2 (playing)
`, out)

	out, err = runCLI(t, "", "code", "tree", "-p", project)
	a.NoError(err)
	a.Equal(`Codes 1-1 of 1
1 - alps
  1 - pw
`, out)
}

func TestListPaginationAndWhere(t *testing.T) {
	a := assert.New(t)

	yaml := writeYAML(t, projectYAML("https://api.example.org", "https://auth.example.org/token"))
	project := initedProject(t, yaml)

	out, err := runCLI(t, "", "calcjob", "list", "-p", project, "--page", "2", "--page-size", "1")
	a.NoError(err)
	a.Contains(out, "Calcjobs 2-2 of 2")
	a.Contains(out, "run2")
	a.NotContains(out, "run1")

	out, err = runCLI(t, "", "calcjob", "list", "-p", project, "--where", "label == 'run1'")
	a.NoError(err)
	a.Contains(out, "Calcjobs 1-1 of 1")
	a.Contains(out, "run1")

	_, err = runCLI(t, "", "calcjob", "list", "-p", project, "--where", "label HAS 'x'")
	a.Error(err)
	a.Equal(common.EExitCode.UserError(), exitCodeFor(err))

	_, err = runCLI(t, "", "calcjob", "list", "-p", project, "--where", "nope == 1")
	a.Error(err)
	a.Equal(common.EExitCode.UserError(), exitCodeFor(err))
}

func TestCalcjobShowWithProcess(t *testing.T) {
	a := assert.New(t)

	yaml := writeYAML(t, projectYAML("https://api.example.org", "https://auth.example.org/token"))
	project := initedProject(t, yaml)

	out, err := runCLI(t, "", "calcjob", "show", "-p", project, "1")
	a.NoError(err)
	a.Contains(out, "run1")
	a.Contains(out, "1 (pw)")
	a.Contains(out, "in.dat <- ")
	a.NotContains(out, "state:")

	out, err = runCLI(t, "", "calcjob", "show", "-p", project, "1", "-P")
	a.NoError(err)
	a.Contains(out, "state:")
	a.Contains(out, "playing")
	a.Contains(out, "created")
}

func TestCalcjobPlay(t *testing.T) {
	a := assert.New(t)

	yaml := writeYAML(t, projectYAML("https://api.example.org", "https://auth.example.org/token"))
	project := initedProject(t, yaml)

	out, err := runCLI(t, "", "calcjob", "play", "-p", project, "1")
	a.NoError(err)
	a.Contains(out, "already playing")

	pauseProcess(t, project, 1, common.EState.Paused())
	out, err = runCLI(t, "", "calcjob", "play", "-p", project, "1")
	a.NoError(err)
	a.Contains(out, "resume at step created")

	pauseProcess(t, project, 1, common.EState.Finished())
	_, err = runCLI(t, "", "calcjob", "play", "-p", project, "1")
	a.Error(err)
	a.Contains(err.Error(), "already finished")
}

func pauseProcess(t *testing.T, project string, calcPk int64, state common.State) {
	t.Helper()
	st, err := store.FromPath(project, false)
	require.NoError(t, err)
	defer st.Close()
	proc, err := processFor(st, calcPk)
	require.NoError(t, err)
	clone := proc.Clone()
	clone.State = state
	require.NoError(t, st.UpdateRow(clone))
}

func TestRunAdvancesJobsEndToEnd(t *testing.T) {
	a := assert.New(t)
	t.Setenv("CRESTFLOW_POLL_INTERVAL", "1ms")

	fake := fcresttest.NewServer()
	t.Cleanup(fake.Close)

	yaml := writeYAML(t, projectYAML(fake.HTTP.URL, fake.HTTP.URL+"/auth/token"))
	project := initedProject(t, yaml)

	out, err := runCLI(t, "", "run", "-p", project, "--number", "5")
	a.NoError(err)
	a.Contains(out, "finished, 0 paths retrieved")
	a.Contains(out, "Run complete:")
	a.Contains(out, "- 2 finished")

	out, err = runCLI(t, "", "status", "-p", project)
	a.NoError(err)
	a.Contains(out, "  - 2 finished")
}

func TestRunValidatesItsFlags(t *testing.T) {
	a := assert.New(t)
	project := initedProject(t, "")

	_, err := runCLI(t, "", "run", "-p", project, "--number", "0")
	a.Error(err)
	a.Contains(err.Error(), "--number")

	_, err = runCLI(t, "", "run", "-p", project, "--log-level", "chatty")
	a.Error(err)
	a.Contains(err.Error(), "--log-level")
}

func TestEnvListsTheRegistry(t *testing.T) {
	a := assert.New(t)

	out, err := runCLI(t, "", "env")
	a.NoError(err)
	a.Contains(out, "CRESTFLOW_LOG_LOCATION")
	a.Contains(out, "CRESTFLOW_POLL_INTERVAL")
	a.Contains(out, "CRESTFLOW_LOCAL_TESTING")
}

func TestExitCodeBuckets(t *testing.T) {
	a := assert.New(t)

	a.Equal(common.EExitCode.Success(), exitCodeFor(nil))
	a.Equal(common.EExitCode.UserError(), exitCodeFor(errors.Wrap(store.ErrNotFound, "client(9)")))
	a.Equal(common.EExitCode.UserError(), exitCodeFor(&store.ValidationError{Msg: "bad shape"}))
	a.Equal(common.EExitCode.UserError(), exitCodeFor(&filter.Error{FilterString: "x", User: "Unknown column: x"}))
	a.Equal(common.EExitCode.UserError(), exitCodeFor(errors.New("boom")))
	a.Equal(common.EExitCode.RemoteError(), exitCodeFor(errors.Wrap(&fcrest.StatusError{Endpoint: "/compute/jobs", Status: 500}, "submit")))
	a.Equal(common.EExitCode.RemoteError(), exitCodeFor(&url.Error{Op: "Get", URL: "http://down", Err: errors.New("refused")}))
	a.Equal(common.EExitCode.RemoteError(), exitCodeFor(fcrest.ErrTooManyCalls))
	a.Equal(common.EExitCode.StorageError(), exitCodeFor(errors.Wrap(objstore.ErrNotFound, "open abc123")))
}
