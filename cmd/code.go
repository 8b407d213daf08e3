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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/store"
)

// codeCmd groups the code subcommands
var codeCmd = &cobra.Command{
	Use:   "code",
	Short: codeCmdShortDescription,
}

func init() {
	rootCmd.AddCommand(codeCmd)
	codeCmd.AddCommand(newDeleteCommand("code"))
}

// parentLabel memoises label lookups through GetColumn so list pages never
// materialise parent rows, and fetch each distinct parent once.
func parentLabel(st *store.Store, cache map[int64]string, table string, pk int64) (string, error) {
	if label, ok := cache[pk]; ok {
		return label, nil
	}
	value, err := st.GetColumn(table, pk, "label")
	if err != nil {
		return "", err
	}
	label, _ := value.(string)
	cache[pk] = label
	return label, nil
}

// rowRef renders a foreign key the way the tables show them: "2 (pw)".
func rowRef(st *store.Store, cache map[int64]string, table string, pk int64) (string, error) {
	label, err := parentLabel(st, cache, table, pk)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d (%s)", pk, label), nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	var pk int64
	var withClient bool

	showCmd := &cobra.Command{
		Use:   "show <pk>",
		Short: "Shows one code row",
		Args:  pkArgument(&pk),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			code, err := store.GetRowAs[*common.Code](st, pk)
			if err != nil {
				return err
			}
			client, err := rowRef(st, map[int64]string{}, "client", code.ClientPk)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writeFields(out, [][2]string{
				{"pk", strconv.FormatInt(code.Pk, 10)},
				{"label", code.Label},
				{"client", client},
				{"upload_paths", renderPaths(code.UploadPaths)},
			})
			fmt.Fprintf(out, "script:\n%s\n", indentLines(code.Script, "  "))
			if !withClient {
				return nil
			}
			clientRow, err := store.GetRowAs[*common.Client](st, code.ClientPk)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			writeClientFields(out, clientRow, false)
			return nil
		},
	}
	codeCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&withClient, "client", false, "Also show the client the code runs on.")
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	paging := listPageArgs{}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists codes",
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

			count, err := st.CountRows("code", where)
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No codes to list")
				return nil
			}
			codes, err := store.IterRowsAs[*common.Code](st, paging.page, paging.pageSize, where)
			if err != nil {
				return err
			}
			clients := map[int64]string{}
			rows := make([][]string, len(codes))
			for i, code := range codes {
				client, err := rowRef(st, clients, "client", code.ClientPk)
				if err != nil {
					return err
				}
				rows[i] = []string{strconv.FormatInt(code.Pk, 10), code.Label, client}
			}
			writeTable(cmd.OutOrStdout(), paging.title("Codes", len(codes), count),
				[]string{"PK", "Label", "Client"}, rows)
			return nil
		},
	}
	codeCmd.AddCommand(listCmd)

	paging.register(listCmd.Flags())
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	paging := listPageArgs{}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Shows codes grouped under their client",
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

			count, err := st.CountRows("code", where)
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No codes to list")
				return nil
			}
			codes, err := store.IterRowsAs[*common.Code](st, paging.page, paging.pageSize, where)
			if err != nil {
				return err
			}
			labels := map[int64]string{}
			clientNodes := map[int64]*treeNode{}
			var roots []*treeNode
			for _, code := range codes {
				clientNode, ok := clientNodes[code.ClientPk]
				if !ok {
					label, err := parentLabel(st, labels, "client", code.ClientPk)
					if err != nil {
						return err
					}
					clientNode = &treeNode{label: fmt.Sprintf("%d - %s", code.ClientPk, label)}
					clientNodes[code.ClientPk] = clientNode
					roots = append(roots, clientNode)
				}
				clientNode.add(fmt.Sprintf("%d - %s", code.Pk, code.Label))
			}
			writeTree(cmd.OutOrStdout(), paging.title("Codes", len(codes), count), roots)
			return nil
		},
	}
	codeCmd.AddCommand(treeCmd)

	paging.register(treeCmd.Flags())
}
