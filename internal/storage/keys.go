package storage

import (
	"fmt"

	"github.com/pagemagic/pagemagic/pkg/models"
)

// KeyPrefix namespaces every key this application writes
const KeyPrefix = "pagemagic_"

// Partition separates small synced settings from larger local data
type Partition string

const (
	PartitionSync  Partition = "sync"
	PartitionLocal Partition = "local"
)

// Kind is the sub-kind tag of a key
type Kind string

const (
	KindCSS           Kind = "css"
	KindHistory       Kind = "history"
	KindDailyUsage    Kind = "usage"
	KindTotalUsage    Kind = "total_usage"
	KindModelLookup   Kind = "model_lookup"
	KindDomainWide    Kind = "domain_wide"
	KindAPIKey        Kind = "api_key"
	KindSelectedModel Kind = "selected_model"
)

// scoped reports whether keys of this kind carry a scope component
func (k Kind) scoped() bool {
	switch k {
	case KindCSS, KindHistory, KindDailyUsage:
		return true
	}
	return false
}

// Partition returns the partition keys of this kind are stored in
func (k Kind) Partition() Partition {
	switch k {
	case KindAPIKey, KindSelectedModel:
		return PartitionSync
	}
	return PartitionLocal
}

// Key is a storage key. Keys can only be built with the constructors in this
// file, which fixes the prefix/kind/scope layout in one place.
type Key struct {
	kind  Kind
	scope string
}

// CSSKey addresses the effective stylesheet of a scope
func CSSKey(scope models.ScopeKey) Key {
	return Key{kind: KindCSS, scope: string(scope)}
}

// HistoryKey addresses the history entry stack of a scope
func HistoryKey(scope models.ScopeKey) Key {
	return Key{kind: KindHistory, scope: string(scope)}
}

// DailyUsageKey addresses the ledger entry for a YYYY-MM-DD date
func DailyUsageKey(date string) Key {
	return Key{kind: KindDailyUsage, scope: date}
}

// TotalUsageKey addresses the all-time ledger entry
func TotalUsageKey() Key { return Key{kind: KindTotalUsage} }

// ModelLookupKey addresses the model id to display name cache
func ModelLookupKey() Key { return Key{kind: KindModelLookup} }

// DomainWideKey addresses the global domain-wide mode flag
func DomainWideKey() Key { return Key{kind: KindDomainWide} }

// APIKeyKey addresses the API credential
func APIKeyKey() Key { return Key{kind: KindAPIKey} }

// SelectedModelKey addresses the selected model identifier
func SelectedModelKey() Key { return Key{kind: KindSelectedModel} }

// Kind returns the key's sub-kind
func (k Key) Kind() Kind { return k.kind }

// Scope returns the scope component, empty for singleton kinds
func (k Key) Scope() string { return k.scope }

// Partition returns the partition the key lives in
func (k Key) Partition() Partition { return k.kind.Partition() }

// String renders the key as stored, e.g. pagemagic_history_https://a.example/foo
func (k Key) String() string {
	if k.kind.scoped() {
		return KeyPrefix + string(k.kind) + "_" + k.scope
	}
	return KeyPrefix + string(k.kind)
}

func (k Key) validate() error {
	if k.kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidKey)
	}
	if k.kind.scoped() && k.scope == "" {
		return fmt.Errorf("%w: %s key requires a scope", ErrInvalidKey, k.kind)
	}
	return nil
}
