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

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/wfe"
)

type rawRunCmdArgs struct {
	number       int
	logLevel     string
	logToFile    bool
	localDataDir string
}

func (raw rawRunCmdArgs) cook() (cookedRunCmdArgs, error) {
	cooked := cookedRunCmdArgs{
		number:       raw.number,
		logToFile:    raw.logToFile,
		localDataDir: raw.localDataDir,
	}
	if raw.number < 1 {
		return cooked, errors.New("--number must be at least 1")
	}
	cooked.logLevel = common.ELogLevel.Report()
	if err := cooked.logLevel.Parse(raw.logLevel); err != nil {
		return cooked, errors.Errorf("failed to parse --log-level due to error: %s", err)
	}
	return cooked, nil
}

type cookedRunCmdArgs struct {
	number       int
	logLevel     common.LogLevel
	logToFile    bool
	localDataDir string
}

func (cooked cookedRunCmdArgs) process(cmd *cobra.Command) error {
	st, err := openProject()
	if err != nil {
		return err
	}
	defer st.Close()

	var logger common.ILoggerCloser
	if cooked.logToFile {
		logger, err = common.NewRunLogFile(cooked.logLevel, projectPath, "run")
		if err != nil {
			return errors.Wrap(err, "open run log")
		}
	} else {
		logger = common.NewRunLogger(cooked.logLevel, cmd.ErrOrStderr())
	}
	defer logger.CloseLog()

	engine := wfe.NewEngine(st, wfe.Options{
		Logger:       logger,
		LocalTesting: common.GetEnvironmentVariableAsBool(common.EEnvironmentVariable.LocalTesting()),
		LocalDataDir: cooked.localDataDir,
	})
	if err := engine.RunUnfinished(cmd.Context(), cooked.number); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Run complete:")
	return writeStateCounts(out, st, "")
}

func init() {
	raw := rawRunCmdArgs{}

	// runCmd represents the run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: runCmdShortDescription,
		Long:  runCmdLongDescription,
		Args:  noArguments,
		RunE: func(cmd *cobra.Command, args []string) error {
			cooked, err := raw.cook()
			if err != nil {
				return err
			}
			return cooked.process(cmd)
		},
	}
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&raw.number, "number", 10, "Maximum number of calcjobs to run.")
	runCmd.Flags().StringVar(&raw.logLevel, "log-level", "report", "Minimum severity written to the run log: none, error, warning, report, info, debug.")
	runCmd.Flags().BoolVar(&raw.logToFile, "log-to-file", false, "Write the run log to a timestamped file inside the project directory instead of stderr.")

	// test-rig knob; pairs with CRESTFLOW_LOCAL_TESTING
	runCmd.Flags().StringVar(&raw.localDataDir, "local-data-dir", "", "Serve staged downloads from this local directory instead of signed URLs.")
	_ = runCmd.Flags().MarkHidden("local-data-dir")
}
