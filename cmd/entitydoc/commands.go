package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/notify"
	"github.com/dshills/entitydoc/internal/patch"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check entity documents against the registered component schemas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				doc, migrated, err := a.readDocument(path)
				if err == nil {
					err = doc.ValidateComponents()
				}
				if err != nil {
					_ = a.print.failure(path+" is invalid", err)
					failed++
					continue
				}
				if migrated {
					a.print.warning("%s uses legacy field names", path)
				}
				a.print.success("%s: %d components valid", path, doc.ComponentCount())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		patchFile string
		write     bool
	)

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Apply a JSON patch to an entity document",
		Long: `Apply each operation of a JSON patch file in order, printing the component
changes it produces. Application stops at the first rejected operation.
With --write the document is saved back when every operation succeeded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			doc, _, err := a.readDocument(path)
			if err != nil {
				return a.print.failure("Failed to read "+path, err)
			}
			data, err := os.ReadFile(patchFile)
			if err != nil {
				return a.print.failure("Failed to read patch", err)
			}
			ops, err := patch.ParseOperations(data)
			if err != nil {
				return a.print.failure("Invalid patch "+patchFile, err)
			}

			notifier := notify.New(notify.WithLogger(a.logger))
			defer notifier.Close()
			notifier.Subscribe(func(c component.Change) {
				a.print.change("%s", c)
			})
			ent := entity.New(doc, entity.WithPublisher(notifier))

			// One group so the whole patch is a single undo step.
			const group = 1
			for i, op := range ops {
				summary, err := ent.ApplyPatch(op, group, entity.ContextModify)
				if err != nil {
					return a.print.failure(fmt.Sprintf("Operation %d (%s) rejected", i, op), err)
				}
				if summary.IsNoOp() {
					a.print.info("%d: %s (no change)", i, op)
					continue
				}
				a.print.info("%d: %s", i, op)
			}
			a.print.success("applied %d operations to %s", len(ops), path)

			if !write {
				return nil
			}
			out, err := node.MarshalIndent(doc.Root())
			if err != nil {
				return a.print.failure("Failed to encode "+path, err)
			}
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return a.print.failure("Failed to write "+path, err)
			}
			a.print.success("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&patchFile, "patch", "p", "", "JSON patch file")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the document")
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}

func newSchemasCmd(a *app) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List registered component types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := a.registry.All()
			if tag != "" {
				defs = a.registry.ByTag(tag)
			}
			if len(defs) == 0 {
				a.print.warning("no component types registered")
				return nil
			}
			for _, def := range defs {
				line := def.Token()
				if len(def.Tags) > 0 {
					line += " [" + strings.Join(def.Tags, ", ") + "]"
				}
				if def.Description != "" {
					line += "  " + def.Description
				}
				a.print.info("%s", line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only list types carrying this tag")
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags <file>",
		Short: "Print the component types present in an entity document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := a.readDocument(args[0])
			if err != nil {
				return a.print.failure("Failed to read "+args[0], err)
			}
			for _, tag := range doc.Tags() {
				a.print.info("%s", tag)
			}
			return nil
		},
	}
}
