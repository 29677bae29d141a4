package pii

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBedrockClient implements BedrockConverseAPI for testing.
type mockBedrockClient struct {
	response string
	err      error
	lastIn   *bedrockruntime.ConverseInput
}

func (m *mockBedrockClient) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.lastIn = in
	if m.err != nil {
		return nil, m.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: m.response},
				},
			},
		},
	}, nil
}

func TestBedrockDetector_LocatesFindings(t *testing.T) {
	mock := &mockBedrockClient{
		response: "```json\n[{\"text\":\"Priya\",\"type\":\"person\",\"score\":0.93},{\"text\":\"Acme\",\"type\":\"ORGANIZATION\",\"score\":1.4}]\n```",
	}
	d := NewBedrockDetector(mock, "haiku-model", nil)

	entities, err := d.Detect(context.Background(), "Priya works at Acme. Priya said so.")
	require.NoError(t, err)

	assert.Equal(t, []Entity{
		{Type: TypePerson, Start: 0, End: 5, Score: 0.93},
		{Type: TypePerson, Start: 21, End: 26, Score: 0.93},
		{Type: TypeOrganization, Start: 15, End: 19, Score: 1},
	}, entities)
	require.NotNil(t, mock.lastIn)
	assert.Equal(t, "haiku-model", *mock.lastIn.ModelId)
}

func TestBedrockDetector_IgnoresHallucinatedText(t *testing.T) {
	mock := &mockBedrockClient{response: `[{"text":"Bob","type":"PERSON","score":0.9}]`}
	entities, err := NewBedrockDetector(mock, "m", nil).Detect(context.Background(), "nobody named here")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestBedrockDetector_DuplicateFindingReportedOnce(t *testing.T) {
	mock := &mockBedrockClient{response: `[{"text":"Leeds","type":"LOCATION","score":0.7},{"text":"Leeds","type":"LOCATION","score":0.7}]`}
	entities, err := NewBedrockDetector(mock, "m", nil).Detect(context.Background(), "Leeds")
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestBedrockDetector_Errors(t *testing.T) {
	_, err := NewBedrockDetector(&mockBedrockClient{err: errors.New("throttled")}, "m", nil).
		Detect(context.Background(), "Priya")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	_, err = NewBedrockDetector(&mockBedrockClient{response: "I cannot help"}, "m", nil).
		Detect(context.Background(), "Priya")
	require.Error(t, err)

	_, err = NewBedrockDetector(&mockBedrockClient{}, "", nil).Detect(context.Background(), "Priya")
	require.Error(t, err)
}

func TestBedrockDetector_EmptyResponse(t *testing.T) {
	entities, err := NewBedrockDetector(&mockBedrockClient{response: ""}, "m", nil).
		Detect(context.Background(), "Priya")
	require.NoError(t, err)
	assert.Empty(t, entities)
}
