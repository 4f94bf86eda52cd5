package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyString(t *testing.T) {
	tests := []struct {
		name      string
		key       Key
		expected  string
		partition Partition
	}{
		{"css", CSSKey("https://a.example/foo"), "pagemagic_css_https://a.example/foo", PartitionLocal},
		{"history", HistoryKey("https://a.example/foo"), "pagemagic_history_https://a.example/foo", PartitionLocal},
		{"daily usage", DailyUsageKey("2024-01-01"), "pagemagic_usage_2024-01-01", PartitionLocal},
		{"total usage", TotalUsageKey(), "pagemagic_total_usage", PartitionLocal},
		{"model lookup", ModelLookupKey(), "pagemagic_model_lookup", PartitionLocal},
		{"domain wide", DomainWideKey(), "pagemagic_domain_wide", PartitionLocal},
		{"api key", APIKeyKey(), "pagemagic_api_key", PartitionSync},
		{"selected model", SelectedModelKey(), "pagemagic_selected_model", PartitionSync},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.key.String())
			assert.Equal(t, tt.partition, tt.key.Partition())
		})
	}
}

func TestKeyValidate(t *testing.T) {
	assert.NoError(t, TotalUsageKey().validate())
	assert.NoError(t, CSSKey("https://a.example").validate())

	assert.ErrorIs(t, Key{}.validate(), ErrInvalidKey)
	assert.ErrorIs(t, CSSKey("").validate(), ErrInvalidKey)
	assert.ErrorIs(t, DailyUsageKey("").validate(), ErrInvalidKey)
}

func TestScopedKeysDoNotCollide(t *testing.T) {
	// The domain key and a page key under the same origin must differ.
	assert.NotEqual(t, HistoryKey("https://a.example").String(), HistoryKey("https://a.example/").String())
	assert.NotEqual(t, CSSKey("https://a.example").String(), HistoryKey("https://a.example").String())
}
