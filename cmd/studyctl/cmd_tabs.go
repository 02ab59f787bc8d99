package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"studydeck/internal/content/model"
)

func runLogin(cmd *cobra.Command, args []string) error {
	body, _ := json.Marshal(model.LoginRequest{Password: args[0]})
	resp, err := http.Post(strings.TrimSuffix(serverURL, "/")+"/api/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("login failed: %s", e["error"])
	}
	var res model.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Token)
	return nil
}

func runTabs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w, err := open(ctx, false, nil)
	if err != nil {
		return err
	}
	defer w.close(ctx)

	active := w.session.State.CurrentTab()
	for _, t := range w.session.Tabs() {
		marker := " "
		if t.ID == active {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-36s %3d  %s\n", marker, t.ID, t.Order, t.Name)
	}
	return nil
}

func runAddTab(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w, err := open(ctx, true, nil)
	if err != nil {
		return err
	}
	defer w.close(ctx)

	id, err := w.session.AddTab(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
