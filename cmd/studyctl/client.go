package main

import (
	"context"
	"fmt"
	"strings"

	"studydeck/internal/content/session"
	"studydeck/internal/content/view"
	"studydeck/store/remote"
)

type workspace struct {
	client  *remote.Client
	session *session.Session
	proj    *view.Memory
}

func wsURL() string {
	u := strings.TrimSuffix(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// open connects a session and waits until the active tab is rendered.
func open(ctx context.Context, admin bool, proj *view.Memory) (*workspace, error) {
	if admin && token == "" {
		return nil, fmt.Errorf("this command needs an admin token, run studyctl login first")
	}
	client, err := remote.Dial(ctx, wsURL(), token)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		proj = view.NewMemory()
	}
	sess, err := session.New(client, proj)
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := sess.SetAdminMode(ctx, admin); err != nil {
		client.Close()
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		client.Close()
		return nil, err
	}
	w := &workspace{client: client, session: sess, proj: proj}
	if err := w.settle(ctx); err != nil {
		w.close(ctx)
		return nil, err
	}
	if tabID != "" {
		if err := sess.SelectTab(ctx, tabID); err != nil {
			w.close(ctx)
			return nil, err
		}
		if err := w.settle(ctx); err != nil {
			w.close(ctx)
			return nil, err
		}
	}
	return w, nil
}

// settle waits for the events the server produced so far, including the
// ones caused by reacting to them.
func (w *workspace) settle(ctx context.Context) error {
	for i := 0; i < 3; i++ {
		if err := w.client.Sync(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *workspace) close(ctx context.Context) {
	_ = w.session.Close(ctx)
	w.client.Close()
}
