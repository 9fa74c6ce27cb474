package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landuse-cli/internal/schema"
)

func TestWriteSchemaJSON_KeepsOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSchemaJSON(&buf, schema.Default()))

	var cats []struct {
		Key  string `json:"key"`
		Tags []struct {
			Key    string          `json:"key"`
			Values json.RawMessage `json:"values"`
		} `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &cats))
	require.Len(t, cats, 8)
	assert.Equal(t, "drinking", cats[0].Key)
	assert.Equal(t, "retail", cats[7].Key)

	vals, err := schema.ParseTagValues(string(cats[0].Tags[0].Values))
	require.NoError(t, err)
	want, err := schema.Default().Tag("drinking", cats[0].Tags[0].Key)
	require.NoError(t, err)
	assert.True(t, vals.Equal(want.Values))
}

func TestSchemaView_AnyValue(t *testing.T) {
	reg := schema.MustNew([]schema.Category{
		{Key: "buildings", Tags: []schema.TagSpec{{Key: "building", Values: schema.AnyValue()}}},
	})
	v := schemaView(reg)
	require.Len(t, v, 1)
	assert.JSONEq(t, "true", string(v[0].Tags[0].Values))
}
