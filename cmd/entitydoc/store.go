package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the entities in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openService()
			if err != nil {
				return a.print.failure("Failed to open store", err)
			}
			defer svc.Close()

			resources, err := svc.List(cmd.Context())
			if err != nil {
				return a.print.failure("Failed to list entities", err)
			}
			for _, r := range resources {
				a.print.info("%s", r)
			}
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <resource>",
		Short: "Print an entity from the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openService()
			if err != nil {
				return a.print.failure("Failed to open store", err)
			}
			defer svc.Close()

			ent, err := svc.Acquire(cmd.Context(), args[0])
			if err != nil {
				return a.print.failure("Failed to load "+args[0], err)
			}
			out, err := node.MarshalIndent(ent.Document().Root())
			if err != nil {
				return err
			}
			a.print.info("%s", out)
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "add <resource> <type>",
		Short: "Add a component to an entity in the configured store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.openService()
			if err != nil {
				return a.print.failure("Failed to open store", err)
			}
			defer svc.Close()

			key := component.Key{Resource: args[0], Index: index}
			if err := svc.AddComponent(ctx, key, args[1]); err != nil {
				return a.print.failure("Failed to add "+args[1], err)
			}
			if _, err := svc.SaveModified(ctx); err != nil {
				return a.print.failure("Failed to save "+args[0], err)
			}
			count, _ := svc.ComponentCount(ctx, args[0])
			a.print.success("added %s to %s (%d components)", args[1], args[0], count)
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "insert position; -1 appends")
	return cmd
}
