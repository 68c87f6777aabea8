package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"ai-todo-agent-be/internal/dto"
	"ai-todo-agent-be/pkg/agent"
	"ai-todo-agent-be/pkg/conversation"

	"github.com/spf13/cobra"
)

// turnRunner is the slice of the orchestrator the REPL needs.
type turnRunner interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
}

// conversationStarter creates an empty conversation and returns its id.
type conversationStarter func(ctx context.Context) (string, error)

func newChatCmd() *cobra.Command {
	var userId, conversationRef string
	var showTools bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent as a user",
		Long:  "Reads one message per line from stdin and prints the agent's reply. Type /new to start a fresh conversation, /quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(true)
			if err != nil {
				return err
			}
			defer s.Close()
			start := func(ctx context.Context) (string, error) {
				conv, err := s.service.CreateConversation(ctx, userId, &dto.CreateConversationRequest{})
				if err != nil {
					return "", err
				}
				return conv.Id.String(), nil
			}
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), s.components.Orchestrator, start, userId, conversationRef, showTools)
		},
	}

	cmd.Flags().StringVarP(&userId, "user", "u", "", "user id to act as")
	cmd.Flags().StringVarP(&conversationRef, "conversation", "c", conversation.LatestRef, "conversation id or \"latest\"")
	cmd.Flags().BoolVar(&showTools, "tools", true, "print tool calls under each reply")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, runner turnRunner, start conversationStarter, userId, conversationRef string, showTools bool) error {
	scanner := bufio.NewScanner(in)
	for {
		userColor.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			id, err := start(ctx)
			if err != nil {
				errorColor.Fprintf(out, "error: %v\n", err)
				continue
			}
			conversationRef = id
			okColor.Fprintf(out, "started conversation %s\n", id)
			continue
		}

		res, err := runner.RunTurn(ctx, agent.TurnRequest{UserId: userId, ConversationRef: conversationRef, Text: line})
		if err != nil {
			errorColor.Fprintf(out, "error: %v\n", err)
			continue
		}

		if showTools {
			printInvocations(out, res.ToolInvocations)
		}
		agentColor.Fprintf(out, "agent: ")
		fmt.Fprintln(out, res.Reply)
		conversationRef = res.ConversationId.String()
	}
}
