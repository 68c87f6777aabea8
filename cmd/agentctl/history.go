package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newConversationsCmd() *cobra.Command {
	var userId string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List a user's conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(false)
			if err != nil {
				return err
			}
			defer s.Close()

			convs, err := s.service.ListConversations(cmd.Context(), userId, limit, offset)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tLAST ACTIVITY")
			for _, c := range convs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.Id, c.Title, c.MessageCount, c.LastActivityAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&userId, "user", "u", "", "owner user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var userId string

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print a conversation's messages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(false)
			if err != nil {
				return err
			}
			defer s.Close()

			messages, err := s.service.GetMessages(cmd.Context(), userId, args[0])
			if err != nil {
				return err
			}
			for _, m := range messages {
				printMessage(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userId, "user", "u", "", "owner user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
