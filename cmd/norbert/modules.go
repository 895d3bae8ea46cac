package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/norbert/pkg/config"
	"github.com/lk2023060901/norbert/pkg/host"
	"github.com/lk2023060901/norbert/pkg/module"
)

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List module units and the implementation each one resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromFile(configFile)
			if err != nil {
				return err
			}
			return listModules(cmd, host.New(host.Options{Dir: cfg.Modules.Dir}), module.Default())
		},
	}
}

func listModules(cmd *cobra.Command, mgr *host.Manager, catalog *module.Catalog) error {
	descs, err := mgr.Discover()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tPROVIDES\tSTATUS")
	for _, d := range descs {
		status := "ok"
		if _, _, err := d.Manifest.Resolve(catalog); err != nil {
			status = err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Path, strings.Join(d.Manifest.Provides, ","), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	cmd.Printf("%d unit(s); available implementations: %s\n", len(descs), strings.Join(catalog.Names(), ", "))
	return nil
}
