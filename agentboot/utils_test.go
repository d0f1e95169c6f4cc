package agentboot

import (
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
)

func TestGetCurrentTimeMs(t *testing.T) {
	before := time.Now().UnixMilli()
	result := getCurrentTimeMs()
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, result, before)
	assert.LessOrEqual(t, result, after)
}

func TestFindToolByName(t *testing.T) {
	tools := []Tool{
		{Tool: api.Tool{Function: api.ToolFunction{Name: "search_icd10_codes"}}},
		{Tool: api.Tool{Function: api.ToolFunction{Name: "search_cpt_codes"}}},
	}

	found := findToolByName(tools, "search_cpt_codes")
	assert.NotNil(t, found)
	assert.Equal(t, "search_cpt_codes", found.Function.Name)

	assert.Nil(t, findToolByName(tools, "search_hcpcs_codes"))
	assert.Nil(t, findToolByName(nil, "search_cpt_codes"))
}

func TestToAPITools(t *testing.T) {
	tools := []Tool{
		{Tool: api.Tool{Function: api.ToolFunction{Name: "a", Description: "first"}}},
		{Tool: api.Tool{Function: api.ToolFunction{Name: "b", Description: "second"}}},
	}

	apiTools := toAPITools(tools)
	assert.Len(t, apiTools, 2)
	assert.Equal(t, "a", apiTools[0].Function.Name)
	assert.Equal(t, "second", apiTools[1].Function.Description)

	assert.Empty(t, toAPITools(nil))
}
