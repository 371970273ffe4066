package server

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/handlers"
)

func runLines(t *testing.T, s *Server, lines ...string) []string {
	t.Helper()
	var out bytes.Buffer
	err := s.processMessages(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func TestEnvelopeProtocol(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{ExtraSets: []handlers.Set{fixtures()}})

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{
			name:    "echo",
			request: `{"tool":"echo","arguments":{"text":"hi"}}`,
			want:    `{"status":"success","result":"hi"}`,
		},
		{
			name:    "unknown tool",
			request: `{"tool":"missing","arguments":{}}`,
			want:    `{"status":"error","error":"Unknown tool: missing"}`,
		},
		{
			name:    "handler error",
			request: `{"tool":"boom"}`,
			want:    `{"status":"error","error":"bad input"}`,
		},
		{
			name:    "resource content is not re-serialized",
			request: `{"resource":"config"}`,
			want:    `{"content":"{\"ok\":true}"}`,
		},
		{
			name:    "unknown resource",
			request: `{"resource":"nope"}`,
			want:    `{"status":"error","error":"Unknown resource: nope"}`,
		},
		{
			name:    "ambiguous request",
			request: `{"tool":"echo","resource":"config"}`,
			want:    `{"status":"error","error":"invalid request: expected exactly one of tool, resource or list"}`,
		},
		{
			name:    "empty object",
			request: `{}`,
			want:    `{"status":"error","error":"invalid request: expected exactly one of tool, resource or list"}`,
		},
		{
			name:    "unknown list target",
			request: `{"list":"prompts"}`,
			want:    `{"status":"error","error":"invalid request: unknown list target \"prompts\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runLines(t, s, tt.request)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestMalformedLineDoesNotStopTheLoop(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{})

	got := runLines(t, s,
		`{not json`,
		``,
		`{"tool":"echo","arguments":{"text":"still here"}}`,
	)

	require.Len(t, got, 2)
	var first models.Response
	require.NoError(t, json.Unmarshal([]byte(got[0]), &first))
	assert.True(t, first.IsError())
	assert.True(t, strings.HasPrefix(first.Error, "invalid request: "), first.Error)
	assert.Equal(t, `{"status":"success","result":"still here"}`, got[1])
}

func TestResponsesKeepRequestOrder(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{})

	var lines []string
	for _, text := range []string{"a", "b", "c", "d"} {
		lines = append(lines, `{"tool":"echo","arguments":{"text":"`+text+`"}}`)
	}
	got := runLines(t, s, lines...)

	assert.Equal(t, []string{
		`{"status":"success","result":"a"}`,
		`{"status":"success","result":"b"}`,
		`{"status":"success","result":"c"}`,
		`{"status":"success","result":"d"}`,
	}, got)
}

func TestListRequests(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{ExtraSets: []handlers.Set{fixtures()}})

	got := runLines(t, s, `{"list":"tools"}`, `{"list":"resources"}`)
	require.Len(t, got, 2)

	var toolsResp models.Response
	require.NoError(t, json.Unmarshal([]byte(got[0]), &toolsResp))
	var descriptors []models.ToolDescriptor
	require.NoError(t, json.Unmarshal(toolsResp.Result, &descriptors))

	var names []string
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"echo", "server_info", "boom"}, names)
	assert.Equal(t, "object", descriptors[0].InputSchema.Type)

	var resourcesResp models.Response
	require.NoError(t, json.Unmarshal([]byte(got[1]), &resourcesResp))
	var resourceList []models.ResourceDescriptor
	require.NoError(t, json.Unmarshal(resourcesResp.Result, &resourceList))
	require.Len(t, resourceList, 2)
	assert.Equal(t, "toolserver://status", resourceList[0].URI)
	assert.Equal(t, "config", resourceList[1].Name)
}

func TestEnvelopeStopsWhenCancelled(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := s.processMessages(ctx, strings.NewReader(`{"tool":"echo","arguments":{"text":"x"}}`+"\n"), &out)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}
