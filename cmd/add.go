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
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/crestflow/crestflow/store"
)

func init() {
	var configPath string

	// addCmd represents the add command
	addCmd := &cobra.Command{
		Use:     "add <config.yaml>",
		Short:   addCmdShortDescription,
		Long:    addCmdLongDescription,
		Example: addCmdExample,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("add requires the YAML configuration file as its only argument")
			}
			configPath = args[0]
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			return ingestFile(cmd, st, configPath)
		},
	}
	rootCmd.AddCommand(addCmd)
}

// ingestFile loads one YAML configuration into the store and reports the new
// pks, in a fixed table order so the output is stable for scripts.
func ingestFile(cmd *cobra.Command, st *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read configuration")
	}
	added, err := st.SaveFromYAML(data)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, key := range []string{"clients", "codes", "calcjobs"} {
		pks := added[key]
		if len(pks) == 0 {
			continue
		}
		rendered := make([]string, len(pks))
		for i, pk := range pks {
			rendered[i] = strconv.FormatInt(pk, 10)
		}
		fmt.Fprintf(out, "Added %s: %s\n", key, strings.Join(rendered, ", "))
	}
	return nil
}
