package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/deployd/deploy-agent/internal/factory"
	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/internal/log"
)

var ErrUnresolved = errors.New("hostname or ip could not be resolved")

// hostinfoCmd represents the hostinfo command
var hostinfoCmd = &cobra.Command{
	Use:   "hostinfo",
	Short: "Resolve the host info and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.Logger()

		resolver, err := factory.CreateResolver(*conf, prometheus.NewRegistry(), logger)
		if err != nil {
			return err
		}

		info := hostinfo.NewHostInfo(map[string]string{}, "")

		resolved, err := resolver.Resolve(cmd.Context(), info)
		if err != nil {
			return fmt.Errorf("failed to resolve host info: %w", err)
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")

		err = encoder.Encode(info)
		if err != nil {
			return fmt.Errorf("failed to write host info: %w", err)
		}

		if !resolved {
			return ErrUnresolved
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(hostinfoCmd)
}
