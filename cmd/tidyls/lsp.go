package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tidyls/internal/lsp"
	"tidyls/internal/tidy"
	"tidyls/internal/version"
)

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the perltidy language server over stdio",
	SilenceUsage: true,
	RunE:         runLSP,
}

func init() {
	lspCmd.Flags().Bool("stdio", true, "serve over stdin/stdout (the only transport)")
	addSettingsFlags(lspCmd)
}

func runLSP(cmd *cobra.Command, _ []string) error {
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	defaults, err := settingsFlags(cmd)
	if err != nil {
		return err
	}
	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Runner:   tidy.ExecRunner{Stderr: os.Stderr},
		Defaults: defaults,
		Version:  version.Version,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
