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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/filter"
	"github.com/crestflow/crestflow/store"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: statusCmdShortDescription,
	Long:  statusCmdLongDescription,
	Args:  noArguments,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openProject()
		if err != nil {
			return err
		}
		defer st.Close()

		out := cmd.OutOrStdout()
		objects, err := st.Objects().Count()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Object Store:")
		fmt.Fprintf(out, "- %s\n", plural(objects, "object"))

		fmt.Fprintln(out, "Database:")
		for _, table := range []string{"client", "code", "calcjob"} {
			n, err := st.CountRows(table)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "- %s\n", plural(n, table))
		}
		return writeStateCounts(out, st, "  ")
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// writeStateCounts prints the per-state process counts, quietly skipping
// states with no processes, the way the status report keeps empty projects
// short.
func writeStateCounts(w io.Writer, st *store.Store, indent string) error {
	states := []common.State{
		common.EState.Playing(),
		common.EState.Paused(),
		common.EState.Finished(),
		common.EState.Excepted(),
	}
	for _, state := range states {
		n, err := st.CountRows("process", filter.Where("state", filter.EOp.Eq(), state.String()))
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		fmt.Fprintf(w, "%s- %d %s\n", indent, n, state)
	}
	return nil
}
