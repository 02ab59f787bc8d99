package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydeck/internal/content/edit"
	"studydeck/internal/content/model"
)

func TestParseEdits(t *testing.T) {
	edits, err := parseEdits([]string{"title=Cells", "option-2=a=b", "description="})
	require.NoError(t, err)
	assert.Equal(t, []edit.Edit{
		{Field: "title", Value: "Cells"},
		{Field: "option-2", Value: "a=b"},
		{Field: "description", Value: ""},
	}, edits)

	_, err = parseEdits([]string{"title"})
	assert.Error(t, err)
	_, err = parseEdits([]string{"color=red"})
	assert.ErrorIs(t, err, model.ErrUnknownField)
}

func TestWSURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:8080": "ws://localhost:8080/ws",
		"https://deck.example/": "wss://deck.example/ws",
		"ws://already.example":  "ws://already.example/ws",
	} {
		serverURL = in
		assert.Equal(t, want, wsURL())
	}
}
