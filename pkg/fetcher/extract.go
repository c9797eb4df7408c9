package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/graphql"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

const systemFields = `
    id
    name
    customerName
    state
    panelsCapacity
    invertersCapacity
    invertersCount
    batteriesCapacity
    batteriesCount
    location
    backupInHours
    status
    openAlertsCount
    systemNo
    deployedAt
    updatedAt
    pmDate
    nocServicesExpiryDate
    macAddress`

const pageQuery = `query allSystemsPaginated($page: Int) {
  allSystemsV1(page: $page) {` + systemFields + `
  }
}`

const fallbackQuery = `query allSystems {
  allSystems {` + systemFields + `
  }
}`

// extractRecords tries each root key in order and returns the first non-empty
// list. A payload may be a bare list or an object wrapping a "systems" list.
func extractRecords(data graphql.Data, rootKeys []string) ([]types.RawSystemRecord, error) {
	for _, key := range rootKeys {
		raw, ok := data.Field(key)
		if !ok {
			continue
		}
		records, err := decodeRecords(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}

func decodeRecords(raw json.RawMessage) ([]types.RawSystemRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Systems json.RawMessage `json:"systems"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		if len(wrapper.Systems) == 0 {
			return nil, nil
		}
		trimmed = bytes.TrimSpace(wrapper.Systems)
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var items []*types.RawSystemRecord
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	records := make([]types.RawSystemRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}
	return records, nil
}
