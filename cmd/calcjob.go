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
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/fcrest"
	"github.com/crestflow/crestflow/filter"
	"github.com/crestflow/crestflow/store"
)

// calcjobCmd groups the calcjob subcommands
var calcjobCmd = &cobra.Command{
	Use:   "calcjob",
	Short: calcjobCmdShortDescription,
}

func init() {
	rootCmd.AddCommand(calcjobCmd)
	calcjobCmd.AddCommand(newDeleteCommand("calcjob"))
}

// processFor returns the single process attached to a calcjob.
func processFor(st *store.Store, calcPk int64) (*common.Process, error) {
	procs, err := store.IterRowsAs[*common.Process](st, 1, 1,
		filter.Where("calcjob_pk", filter.EOp.Eq(), calcPk))
	if err != nil {
		return nil, err
	}
	if len(procs) == 0 {
		return nil, errors.Errorf("calcjob %d has no process row", calcPk)
	}
	return procs[0], nil
}

// calcRefs resolves the code and client references shown on calcjob lines,
// caching labels and the code→client edge across a page.
type calcRefs struct {
	st           *store.Store
	codeLabels   map[int64]string
	clientLabels map[int64]string
	clientOf     map[int64]int64
}

func newCalcRefs(st *store.Store) *calcRefs {
	return &calcRefs{
		st:           st,
		codeLabels:   map[int64]string{},
		clientLabels: map[int64]string{},
		clientOf:     map[int64]int64{},
	}
}

func (r *calcRefs) clientPkOf(codePk int64) (int64, error) {
	if pk, ok := r.clientOf[codePk]; ok {
		return pk, nil
	}
	value, err := r.st.GetColumn("code", codePk, "client_pk")
	if err != nil {
		return 0, err
	}
	pk, ok := value.(int64)
	if !ok {
		return 0, errors.Errorf("code %d has a non-integer client_pk", codePk)
	}
	r.clientOf[codePk] = pk
	return pk, nil
}

func (r *calcRefs) code(codePk int64) (string, error) {
	return rowRef(r.st, r.codeLabels, "code", codePk)
}

func (r *calcRefs) client(codePk int64) (string, error) {
	clientPk, err := r.clientPkOf(codePk)
	if err != nil {
		return "", err
	}
	return rowRef(r.st, r.clientLabels, "client", clientPk)
}

func renderParameters(params map[string]interface{}) string {
	if len(params) == 0 {
		return "-"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(data)
}

func renderOptional(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	var pk int64
	var withProcess bool

	showCmd := &cobra.Command{
		Use:   "show <pk>",
		Short: "Shows one calcjob row",
		Args:  pkArgument(&pk),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			calc, err := store.GetRowAs[*common.CalcJob](st, pk)
			if err != nil {
				return err
			}
			code, err := rowRef(st, map[int64]string{}, "code", calc.CodePk)
			if err != nil {
				return err
			}
			globs := "-"
			if len(calc.DownloadGlobs) > 0 {
				globs = strings.Join(calc.DownloadGlobs, ", ")
			}
			out := cmd.OutOrStdout()
			writeFields(out, [][2]string{
				{"pk", strconv.FormatInt(calc.Pk, 10)},
				{"label", calc.Label},
				{"uuid", calc.UUID},
				{"code", code},
				{"parameters", renderParameters(calc.Parameters)},
				{"upload_paths", renderPaths(calc.UploadPaths)},
				{"download_globs", globs},
			})
			if !withProcess {
				return nil
			}
			proc, err := processFor(st, pk)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			writeFields(out, [][2]string{
				{"process", strconv.FormatInt(proc.Pk, 10)},
				{"step", proc.Step.String()},
				{"state", proc.State.String()},
				{"job_id", renderOptional(proc.JobID)},
				{"exception", renderOptional(proc.Exception)},
				{"retrieved_paths", renderPaths(proc.RetrievedPaths)},
			})
			return writeDataNodes(out, st, pk)
		},
	}
	calcjobCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVarP(&withProcess, "process", "P", false, "Also show the process and any data nodes.")
}

// writeDataNodes lists the output nodes a calcjob created, one line each.
func writeDataNodes(out io.Writer, st *store.Store, calcPk int64) error {
	nodes, err := store.IterRowsAs[*common.DataNode](st, 1, 0,
		filter.Where("creator_pk", filter.EOp.Eq(), calcPk))
	if err != nil {
		return err
	}
	for _, node := range nodes {
		paths := "-"
		if raw, ok := node.Attributes["paths"].([]interface{}); ok && len(raw) > 0 {
			parts := make([]string, len(raw))
			for i, p := range raw {
				parts[i] = fmt.Sprintf("%v", p)
			}
			paths = strings.Join(parts, ", ")
		}
		fmt.Fprintf(out, "data_node %d: %s\n", node.Pk, paths)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	paging := listPageArgs{}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists calcjobs with their process state",
		Args:  noArguments,
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := paging.filter()
			if err != nil {
				return err
			}
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()

			count, err := st.CountRows("calcjob", where)
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No calcjobs to list")
				return nil
			}
			calcs, err := store.IterRowsAs[*common.CalcJob](st, paging.page, paging.pageSize, where)
			if err != nil {
				return err
			}
			refs := newCalcRefs(st)
			rows := make([][]string, len(calcs))
			for i, calc := range calcs {
				code, err := refs.code(calc.CodePk)
				if err != nil {
					return err
				}
				client, err := refs.client(calc.CodePk)
				if err != nil {
					return err
				}
				proc, err := processFor(st, calc.Pk)
				if err != nil {
					return err
				}
				rows[i] = []string{
					strconv.FormatInt(calc.Pk, 10),
					calc.Label,
					code,
					client,
					proc.State.String(),
					proc.Step.String(),
				}
			}
			writeTable(cmd.OutOrStdout(), paging.title("Calcjobs", len(calcs), count),
				[]string{"PK", "Label", "Code", "Client", "State", "Step"}, rows)
			return nil
		},
	}
	calcjobCmd.AddCommand(listCmd)

	paging.register(listCmd.Flags())
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	paging := listPageArgs{}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Shows calcjobs grouped under their client and code",
		Args:  noArguments,
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := paging.filter()
			if err != nil {
				return err
			}
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()

			count, err := st.CountRows("calcjob", where)
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No calcjobs to list")
				return nil
			}
			calcs, err := store.IterRowsAs[*common.CalcJob](st, paging.page, paging.pageSize, where)
			if err != nil {
				return err
			}
			refs := newCalcRefs(st)
			clientNodes := map[int64]*treeNode{}
			codeNodes := map[int64]*treeNode{}
			var roots []*treeNode
			for _, calc := range calcs {
				clientPk, err := refs.clientPkOf(calc.CodePk)
				if err != nil {
					return err
				}
				clientNode, ok := clientNodes[clientPk]
				if !ok {
					label, err := parentLabel(st, refs.clientLabels, "client", clientPk)
					if err != nil {
						return err
					}
					clientNode = &treeNode{label: fmt.Sprintf("%d - %s", clientPk, label)}
					clientNodes[clientPk] = clientNode
					roots = append(roots, clientNode)
				}
				codeNode, ok := codeNodes[calc.CodePk]
				if !ok {
					label, err := parentLabel(st, refs.codeLabels, "code", calc.CodePk)
					if err != nil {
						return err
					}
					codeNode = clientNode.add(fmt.Sprintf("%d - %s", calc.CodePk, label))
					codeNodes[calc.CodePk] = codeNode
				}
				proc, err := processFor(st, calc.Pk)
				if err != nil {
					return err
				}
				codeNode.add(fmt.Sprintf("%d - %s (%s)", calc.Pk, calc.Label, proc.State))
			}
			writeTree(cmd.OutOrStdout(), paging.title("Calcjobs", len(calcs), count), roots)
			return nil
		},
	}
	calcjobCmd.AddCommand(treeCmd)

	paging.register(treeCmd.Flags())
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	var pk int64

	playCmd := &cobra.Command{
		Use:   "play <pk>",
		Short: "Sets a paused or excepted calcjob back to playing",
		Long: `Clears the recorded exception and marks the process playing again, so the
next run picks it up at the step it stopped on. Finished calcjobs cannot be
replayed.`,
		Args: pkArgument(&pk),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			proc, err := processFor(st, pk)
			if err != nil {
				return err
			}
			switch proc.State {
			case common.EState.Playing():
				fmt.Fprintf(cmd.OutOrStdout(), "Process %d is already playing\n", proc.Pk)
				return nil
			case common.EState.Finished():
				return errors.Errorf("process %d already finished, nothing to play", proc.Pk)
			}
			clone := proc.Clone()
			clone.State = common.EState.Playing()
			clone.Exception = nil
			if err := st.UpdateRow(clone); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Process %d will resume at step %s on the next run\n", clone.Pk, clone.Step)
			return nil
		},
	}
	calcjobCmd.AddCommand(playCmd)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	var pk int64
	var showHidden bool
	var maxCalls, maxDepth int

	lsCmd := &cobra.Command{
		Use:   "ls <pk>",
		Short: "Lists the remote job directory of a calcjob",
		Long: `Walks the calcjob's directory on the cluster with plain listing calls, one
per directory. The walk aborts once --max-calls directories have been listed,
so a runaway tree cannot hammer the facade.`,
		Args: pkArgument(&pk),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			calc, err := store.GetRowAs[*common.CalcJob](st, pk)
			if err != nil {
				return err
			}
			code, err := store.GetRowAs[*common.Code](st, calc.CodePk)
			if err != nil {
				return err
			}
			client, err := store.GetRowAs[*common.Client](st, code.ClientPk)
			if err != nil {
				return err
			}

			fc := fcrest.NewClient(fcrest.Config{
				BaseURL:      client.ClientURL,
				TokenURL:     client.TokenURI,
				ClientID:     client.ClientID,
				ClientSecret: client.ClientSecret,
				MachineName:  client.MachineName,
			})
			work := common.RemoteWorkPath(client, calc)
			records, err := fc.LsRecurse(cmd.Context(), work.String(), fcrest.LsRecurseOptions{
				ShowHidden: showHidden,
				MaxCalls:   maxCalls,
				MaxDepth:   maxDepth,
			})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is empty\n", work)
				return nil
			}
			rows := make([][]string, len(records))
			for i, rec := range records {
				rel := strings.TrimPrefix(rec.Path, work.String()+"/")
				rows[i] = []string{rel, rec.Type, strconv.FormatInt(rec.Size, 10)}
			}
			writeTable(cmd.OutOrStdout(), fmt.Sprintf("Contents of %s", work),
				[]string{"Path", "Type", "Size"}, rows)
			return nil
		},
	}
	calcjobCmd.AddCommand(lsCmd)

	lsCmd.Flags().BoolVar(&showHidden, "show-hidden", false, "Include dotfiles in the listing.")
	lsCmd.Flags().IntVar(&maxCalls, "max-calls", 100, "Abort after this many facade listing calls.")
	lsCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Descend at most this many directory levels; 0 means no limit.")
}
