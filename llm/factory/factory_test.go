package factory

import (
	"testing"

	"github.com/BaSui01/agentrelay/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewReasoner_Providers(t *testing.T) {
	cfg := providers.Config{APIKey: "sk-test", BaseURL: "https://example.openai.azure.com"}

	tests := []struct {
		provider string
		wantName string
	}{
		{"openai", "openai"},
		{"azure", "azure"},
		{"anthropic", "anthropic"},
		{"Claude", "anthropic"},
		{"gemini", "gemini"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			r, err := NewReasoner(tt.provider, cfg, zap.NewNop())
			require.NoError(t, err)
			require.NotNil(t, r)
			assert.Equal(t, tt.wantName, r.Name())
			assert.True(t, r.Available())
		})
	}
}

func TestNewReasoner_NoOracle(t *testing.T) {
	for _, name := range []string{"", "none", " NONE "} {
		r, err := NewReasoner(name, providers.Config{APIKey: "k"}, nil)
		assert.NoError(t, err)
		assert.Nil(t, r)
	}

	r, err := NewReasoner("openai", providers.Config{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, r, "缺少 API Key 时不创建 Oracle")
}

func TestNewReasoner_Errors(t *testing.T) {
	_, err := NewReasoner("unknown", providers.Config{APIKey: "k"}, nil)
	assert.Error(t, err)

	_, err = NewReasoner("azure", providers.Config{APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestSupportedProviders(t *testing.T) {
	assert.Contains(t, SupportedProviders(), "none")
}
