package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"studydeck/internal/content/edit"
	"studydeck/internal/content/model"
	"studydeck/internal/content/view"
)

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w, err := open(ctx, true, nil)
	if err != nil {
		return err
	}
	defer w.close(ctx)

	id, err := w.session.AddContent(ctx, model.ItemType(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

// parseEdits turns field=value arguments into edits.
func parseEdits(args []string) ([]edit.Edit, error) {
	edits := make([]edit.Edit, 0, len(args))
	for _, a := range args {
		field, value, ok := strings.Cut(a, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", a)
		}
		if _, err := model.FieldPath(field); err != nil {
			return nil, err
		}
		edits = append(edits, edit.Edit{Field: field, Value: value})
	}
	return edits, nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	edits, err := parseEdits(args[1:])
	if err != nil {
		return err
	}
	// only answers can be edited without admin rights
	admin := false
	for _, e := range edits {
		if e.Field != "userAnswer" {
			admin = true
		}
	}
	w, err := open(ctx, admin, nil)
	if err != nil {
		return err
	}
	defer w.close(ctx)

	itemID := args[0]
	ok, err := w.session.FocusIn(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("card %s is being edited by another session", itemID)
	}
	res, err := w.session.FocusOut(ctx, itemID, edits, "")
	if err != nil {
		return err
	}
	switch {
	case res.Aborted:
		fmt.Fprintf(cmd.OutOrStdout(), "card %s no longer exists\n", itemID)
	case len(res.Written) == 0:
		fmt.Fprintln(cmd.OutOrStdout(), "nothing changed")
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", strings.Join(res.Written, ", "))
	}
	return nil
}

func runReorder(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w, err := open(ctx, true, nil)
	if err != nil {
		return err
	}
	defer w.close(ctx)
	return w.session.Reorder(ctx, args)
}

func printCards(out io.Writer, cards []view.Card) {
	fmt.Fprintln(out, "----")
	for i, c := range cards {
		lock := ""
		if c.Locked {
			lock = " [editing]"
		}
		fmt.Fprintf(out, "%2d. %-7s %s%s\n", i+1, c.Item.Type, summary(c.Item), lock)
	}
}

func summary(it model.Item) string {
	switch it.Type {
	case model.TypeMCQ, model.TypeSAQ:
		return it.Question
	default:
		return it.Title
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proj := view.NewMemory()
	out := cmd.OutOrStdout()
	proj.Notify = func() { printCards(out, proj.Cards()) }

	w, err := open(ctx, false, proj)
	if err != nil {
		return err
	}
	defer w.close(context.Background())

	select {
	case <-ctx.Done():
		return nil
	case <-w.client.Done():
		return w.client.Err()
	}
}
