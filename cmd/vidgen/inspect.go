package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skyreel/vidgen/models"
)

func newModelsCmd(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered model types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-8s %-35s %s\n", "TYPE", "KIND", "REMOTE MODEL", "STREAMING")
			for _, modelType := range a.registry.List() {
				adapter, err := a.registry.Get(modelType)
				if err != nil {
					return err
				}
				streaming := "no"
				if s, ok := adapter.(models.Streamer); ok && s.SupportsStreaming() {
					streaming = "yes"
				}
				fmt.Fprintf(out, "%-10s %-8s %-35s %s\n", adapter.ModelType(), adapter.Kind(), adapter.RemoteModelID(), streaming)
			}
			return nil
		},
	}
}

func newConfigsCmd(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "configs",
		Short: "List available configuration documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			names := a.configs.ListAvailable()
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no config documents in %s\n", flags.configDir)
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newShowCmd(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show [config]",
		Short: "Print a config after inheritance resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			doc, err := a.configs.Resolve(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
