package cmd

import (
	"fmt"

	"github.com/habedi/gauth/client"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func apiClient(cmd *cobra.Command) (*client.Client, func(), error) {
	cfg, _, provider, closeFn, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	return client.New(newSession(cfg, provider)), closeFn, nil
}

func meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := apiClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			var me *client.Person
			err = withRetry(cmd.Context(), retryWindow, func() error {
				var err error
				me, err = c.Me(cmd.Context())
				return err
			})
			if err != nil {
				return toCLIError(err)
			}
			cmd.Printf("Name: %s\n", me.DisplayName())
			cmd.Printf("Email: %s\n", me.Email())
			cmd.Printf("Resource: %s\n", me.ResourceName)
			return nil
		},
	}
}

func peopleCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "people",
		Short: "List the signed-in user's contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := apiClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			var people []client.Person
			err = withRetry(cmd.Context(), retryWindow, func() error {
				var err error
				people, err = c.Connections(cmd.Context(), limit)
				return err
			})
			if err != nil {
				return toCLIError(err)
			}
			if len(people) == 0 {
				cmd.Println("No contacts found.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Name", "Email"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			for _, p := range people {
				table.Append([]string{p.DisplayName(), p.Email()})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "max", "m", 0, "Maximum number of contacts to list (0 lists all)")
	return cmd
}

func translateCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate text with the Cloud Translation API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := apiClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			var tr *client.Translation
			err = withRetry(cmd.Context(), retryWindow, func() error {
				var err error
				tr, err = c.Translate(cmd.Context(), args[0], target)
				return err
			})
			if err != nil {
				return toCLIError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tr.TranslatedText)
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "es", "Target language code")
	return cmd
}
