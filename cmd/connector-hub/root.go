package main

import (
	"os"
	"sync"

	"github.com/open-sspm/connector-hub/internal/logging"
	"github.com/spf13/cobra"
)

// annotationPlainOutput marks commands whose output is meant for people or
// pipes rather than a log collector.
const annotationPlainOutput = "connector-hub/plain-output"

var rootCmd = &cobra.Command{
	Use:           logging.AppName,
	Short:         "Connector Hub brokers OAuth connections between users and SaaS connectors.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

// The hook is assigned here because prepareCommand inspects the command tree,
// which would otherwise make rootCmd's initializer refer to itself.
func init() {
	rootCmd.PersistentPreRunE = prepareCommand
	rootCmd.AddCommand(serveCmd, migrateCmd, connectorsCmd, seedConnectorsCmd, refreshCmd)
}

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	execCtxMu sync.RWMutex
	execCtx   = commandExecutionContext{CommandPath: logging.AppName}
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	execCtxMu.Lock()
	defer execCtxMu.Unlock()
	execCtx = ctx
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{CommandPath: logging.AppName})
}

func currentCommandExecutionContext() commandExecutionContext {
	execCtxMu.RLock()
	defer execCtxMu.RUnlock()
	return execCtx
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	if cmd == nil || !cmd.HasParent() {
		return false
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationPlainOutput] == "true" {
			return false
		}
	}
	return true
}

// prepareCommand records how the running command reports errors and, for
// long-running commands, installs the structured default logger.
func prepareCommand(cmd *cobra.Command, _ []string) error {
	structured := commandUsesStructuredLogging(cmd)
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       cmd.CommandPath(),
		UsesStructuredLog: structured,
	})
	if !structured {
		return nil
	}
	_, err := logging.BootstrapFromEnv(logging.BootstrapOptions{
		Command: cmd.CommandPath(),
		Writer:  os.Stderr,
	})
	return err
}
