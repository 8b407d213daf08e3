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
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/fcrest"
	"github.com/crestflow/crestflow/filter"
	"github.com/crestflow/crestflow/objstore"
	"github.com/crestflow/crestflow/store"
)

var projectPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: common.CrestflowVersion, // will enable the user to see the version info in the standard posix way: --version
	Use:     "crestflow",
	Short:   rootCmdShortDescription,
	Long:    rootCmdLongDescription,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra has already written the error to stderr; all that is left
		// is picking the exit status scripts branch on
		os.Exit(int(exitCodeFor(err)))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project-path", "p", ".crestflow_project", "Path to the project directory.")
}

// openProject opens the project the persistent --project-path flag points at.
// Every command except init refuses a directory that was never initialised.
func openProject() (*store.Store, error) {
	return store.FromPath(projectPath, false)
}

// exitCodeFor buckets an error for the process exit status: bad input and
// unknown rows are the caller's fault, facade and network trouble is the
// cluster's, and a broken local database or object store is neither.
func exitCodeFor(err error) common.ExitCode {
	var (
		validation  *store.ValidationError
		undeletable *store.UndeletableError
		badFilter   *filter.Error
		status      *fcrest.StatusError
		transport   *url.Error
		dbErr       sqlite3.Error
	)
	switch {
	case err == nil:
		return common.EExitCode.Success()
	case errors.As(err, &validation), errors.As(err, &undeletable), errors.As(err, &badFilter),
		errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrAlreadySaved), errors.Is(err, store.ErrFrozen):
		return common.EExitCode.UserError()
	case errors.As(err, &status), errors.As(err, &transport), errors.Is(err, fcrest.ErrTooManyCalls):
		return common.EExitCode.RemoteError()
	case errors.As(err, &dbErr), errors.Is(err, objstore.ErrNotFound):
		return common.EExitCode.StorageError()
	default:
		return common.EExitCode.UserError()
	}
}

// pkArgument builds the Args validator shared by the show/delete/play style
// commands: exactly one positional argument, parsed into target as a pk.
func pkArgument(target *int64) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("this command requires the row pk as its only argument")
		}
		pk, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Errorf("pk must be an integer, got %q", args[0])
		}
		*target = pk
		return nil
	}
}

// noArguments rejects stray positional arguments on commands that take none.
func noArguments(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.Errorf("%s does not take any argument", cmd.Name())
	}
	return nil
}

// confirmDeletion asks before a row is removed. --yes skips the prompt, which
// is what scripts should pass; any answer but y keeps the row.
func confirmDeletion(cmd *cobra.Command, assumeYes bool, table string, pk int64) error {
	if assumeYes {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Are you sure you want to delete %s %d? (y/N): ", table, pk)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errors.New("deletion cancelled")
}

// newDeleteCommand builds the `delete <pk>` subcommand every entity group
// carries. The row is fetched first so an unknown pk fails before the prompt;
// rows other rows still reference are refused by the store.
func newDeleteCommand(table string) *cobra.Command {
	var pk int64
	var assumeYes bool

	deleteCmd := &cobra.Command{
		Use:   "delete <pk>",
		Short: "Deletes one " + table + " row",
		Args:  pkArgument(&pk),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			row, err := st.GetRow(table, pk)
			if err != nil {
				return err
			}
			if err := confirmDeletion(cmd, assumeYes, table, pk); err != nil {
				return err
			}
			if err := st.DeleteRow(row); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %d\n", table, pk)
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt.")
	return deleteCmd
}
