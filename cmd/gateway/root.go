// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/archestra-ai/gateway/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "gateway",
	Short:   "Archestra Gateway - policy-enforcing LLM proxy",
	Long:    `Archestra Gateway is a multi-tenant reverse proxy for LLM providers with tool-invocation policy, dual-LLM trust evaluation, cost accounting, and interaction recording.`,
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gateway.yaml, /etc/archestra/gateway.yaml)")
}

func main() {
	Execute()
}
