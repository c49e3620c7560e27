package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	type post struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}

	rec, err := Encode(post{Title: "Hello", Tags: []string{"go"}}, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Version)
	assert.JSONEq(t, `{"title":"Hello","tags":["go"]}`, string(rec.Data))

	var got post
	require.NoError(t, Decode(rec, &got))
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, []string{"go"}, got.Tags)
}

func TestDecodeErrors(t *testing.T) {
	var v map[string]any
	assert.True(t, errors.Is(Decode(nil, &v), ErrNotFound))
	assert.ErrorContains(t, Decode(&Record{Data: []byte("{")}, &v), "decoding record")

	_, err := Encode(make(chan int), 1)
	assert.ErrorContains(t, err, "encoding record")
}
