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
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/store"
)

// clientCmd groups the client subcommands
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: clientCmdShortDescription,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(newDeleteCommand("client"))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type rawClientCreateArgs struct {
	label           string
	clientURL       string
	clientID        string
	clientSecret    string
	tokenURI        string
	machineName     string
	workDir         string
	fsystem         string
	smallFileSizeMB int64
}

func (raw rawClientCreateArgs) cook() (*common.Client, error) {
	if raw.clientURL == "" || raw.clientID == "" || raw.clientSecret == "" ||
		raw.tokenURI == "" || raw.machineName == "" || raw.workDir == "" {
		return nil, errors.New("client create requires --client-url, --client-id, --client-secret, --token-uri, --machine-name and --work-dir")
	}
	fs := common.EFilesystem.Posix()
	if raw.fsystem != "" {
		if err := fs.Parse(raw.fsystem); err != nil {
			return nil, errors.Errorf("failed to parse --fsystem due to error: %s", err)
		}
	}
	if raw.smallFileSizeMB < 0 {
		return nil, errors.New("--small-file-size-mb cannot be negative")
	}
	return &common.Client{
		Label:           raw.label,
		ClientURL:       raw.clientURL,
		ClientID:        raw.clientID,
		ClientSecret:    raw.clientSecret,
		TokenURI:        raw.tokenURI,
		MachineName:     raw.machineName,
		WorkDir:         raw.workDir,
		FSystem:         fs,
		SmallFileSizeMB: raw.smallFileSizeMB,
	}, nil
}

func init() {
	raw := rawClientCreateArgs{}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Creates a new client",
		Args:  noArguments,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := raw.cook()
			if err != nil {
				return err
			}
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveRow(client); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created client %d (%s)\n", client.Pk, client.Label)
			return nil
		},
	}
	clientCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&raw.label, "label", "", "Label for the client; drawn from the friendly-name pool when omitted.")
	createCmd.Flags().StringVar(&raw.clientURL, "client-url", "", "URL of the FirecREST API.")
	createCmd.Flags().StringVar(&raw.clientID, "client-id", "", "Client ID for the credential grant.")
	createCmd.Flags().StringVar(&raw.clientSecret, "client-secret", "", "Client secret for the credential grant.")
	createCmd.Flags().StringVar(&raw.tokenURI, "token-uri", "", "Token endpoint of the auth server.")
	createCmd.Flags().StringVar(&raw.machineName, "machine-name", "", "Machine name passed on every facade call.")
	createCmd.Flags().StringVar(&raw.workDir, "work-dir", "", "Absolute directory job folders are created under.")
	createCmd.Flags().StringVar(&raw.fsystem, "fsystem", "posix", "Remote filesystem flavour: posix or windows.")
	createCmd.Flags().Int64Var(&raw.smallFileSizeMB, "small-file-size-mb", 5, "Files at most this size move through the facade directly; larger ones are staged.")
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	var pk int64
	var showSensitive bool

	showCmd := &cobra.Command{
		Use:   "show <pk>",
		Short: "Shows one client row",
		Args:  pkArgument(&pk),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openProject()
			if err != nil {
				return err
			}
			defer st.Close()
			client, err := store.GetRowAs[*common.Client](st, pk)
			if err != nil {
				return err
			}
			writeClientFields(cmd.OutOrStdout(), client, showSensitive)
			return nil
		},
	}
	clientCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showSensitive, "show-sensitive", false, "Shows the client secret instead of redacting it.")
}

// writeClientFields prints a client row; the secret stays redacted unless
// explicitly asked for, so show output is safe to paste into tickets.
func writeClientFields(w io.Writer, client *common.Client, showSensitive bool) {
	secret := "REDACTED"
	if showSensitive {
		secret = client.ClientSecret
	}
	writeFields(w, [][2]string{
		{"pk", strconv.FormatInt(client.Pk, 10)},
		{"label", client.Label},
		{"client_url", client.ClientURL},
		{"client_id", client.ClientID},
		{"client_secret", secret},
		{"token_uri", client.TokenURI},
		{"machine_name", client.MachineName},
		{"work_dir", client.WorkDir},
		{"fsystem", client.FSystem.String()},
		{"small_file_size_mb", strconv.FormatInt(client.SmallFileSizeMB, 10)},
	})
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	paging := listPageArgs{}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists clients",
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

			count, err := st.CountRows("client", where)
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No clients to list")
				return nil
			}
			clients, err := store.IterRowsAs[*common.Client](st, paging.page, paging.pageSize, where)
			if err != nil {
				return err
			}
			rows := make([][]string, len(clients))
			for i, client := range clients {
				rows[i] = []string{
					strconv.FormatInt(client.Pk, 10),
					client.Label,
					client.ClientURL,
					client.ClientID,
					client.MachineName,
				}
			}
			writeTable(cmd.OutOrStdout(), paging.title("Clients", len(clients), count),
				[]string{"PK", "Label", "Client URL", "Client ID", "Machine"}, rows)
			return nil
		},
	}
	clientCmd.AddCommand(listCmd)

	paging.register(listCmd.Flags())
}
