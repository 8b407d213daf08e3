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

import "github.com/crestflow/crestflow/common"

const rootCmdShortDescription = "Crestflow runs calculation jobs on FirecREST-fronted HPC machines."

const rootCmdLongDescription = "Crestflow " + common.CrestflowVersion +
	`
Crestflow keeps clients, codes and calculation jobs in a local project
directory and advances each job through upload, submission, polling and
retrieval against the FirecREST API of its cluster.

A project directory holds '` + "storage.sqlite" + `' (the entity database) and
'objects/' (the content-addressed file store). Create one with
'crestflow init', load work into it with 'crestflow add', and advance it
with 'crestflow run'.
`

const envCmdShortDescription = "Shows the environment variables that can configure Crestflow's behavior"

const envCmdLongDescription = ""

const initCmdShortDescription = "Initialises a project directory"

const initCmdLongDescription = `Creates the project directory, its entity database and its object store.
Running init on an existing project is harmless; rows already stored are
kept. Pass --add to load a YAML configuration straight away.`

const addCmdShortDescription = "Adds clients, codes and calcjobs from a YAML file"

const addCmdLongDescription = `Loads a YAML configuration into the project. The file may carry an
'objects' map (inline or file-backed content), plus 'clients', 'codes' and
'calcjobs' lists. Rows are written in one transaction: one bad item rejects
the whole batch.`

const addCmdExample = `crestflow add jobs.yaml

Where jobs.yaml looks like:

  objects:
    input:
      path: ./in.dat
  clients:
    - label: alps
      client_url: https://firecrest.example.org/
      client_id: svc
      client_secret: hunter2
      token_uri: https://auth.example.org/token
      machine_name: daint
      work_dir: /scratch/svc
  codes:
    - label: pw
      client_label: alps
      script: "pw.x < {{calc.infile}}"
  calcjobs:
    - label: run1
      code_label: pw
      parameters: {infile: in.dat}
      upload_paths:
        in.dat: {label: input}
      download_globs: ["*.out"]`

const statusCmdShortDescription = "Shows object, row and process-state counts for the project"

const statusCmdLongDescription = ""

const runCmdShortDescription = "Runs unfinished calcjobs"

const runCmdLongDescription = `Picks up to --number playing processes and advances each through its
remaining steps: uploading inputs, submitting the rendered script, waiting
for the scheduler, retrieving outputs. Failures are recorded on the process
row (state excepted) rather than stopping the batch; rerun after fixing the
cause and each job resumes at the step it stopped on.`

const clientCmdShortDescription = "Configure and inspect connections to FirecREST clients"

const codeCmdShortDescription = "Configure and inspect codes running on a client"

const calcjobCmdShortDescription = "Configure and inspect calculation jobs to run a code"

const whereFlagDescription = "Filter expression, e.g. \"label LIKE 'al%' AND pk > 1\"."

const pageFlagDescription = "The page of results to show."

const pageSizeFlagDescription = "The number of results per page."
