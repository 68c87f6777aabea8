// Command agentctl is the operator CLI for the task agent: chat with it from
// a terminal, inspect conversations, run migrations and tail task events.
package main

import (
	"fmt"
	"os"

	"ai-todo-agent-be/internal/bootstrap"
	"ai-todo-agent-be/internal/config"
	"ai-todo-agent-be/internal/pkg/logger"
	"ai-todo-agent-be/internal/service"
	"ai-todo-agent-be/pkg/database"
	"ai-todo-agent-be/pkg/llm"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operate the task agent",
		Long:          "agentctl drives the task agent directly against its database, without the HTTP layer.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newConversationsCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newEventsCmd())
	return cmd
}

// session is everything a subcommand needs from the wiring.
type session struct {
	components *bootstrap.Components
	service    service.IAgentService
}

func (s *session) Close() {
	s.components.Close()
}

// openSession connects to the configured database. The model client is
// only built when withModel is set.
func openSession(withModel bool) (*session, error) {
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var provider llm.Provider
	if withModel {
		provider, err = bootstrap.NewLLMProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("init model: %w", err)
		}
	}

	// file only, so logs never interleave with the REPL
	log := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	c := bootstrap.NewComponents(db, cfg, provider, log)
	return &session{
		components: c,
		service:    service.NewAgentService(c.UowFactory, c.Store, c.Orchestrator, c.Limiter, log),
	}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}
