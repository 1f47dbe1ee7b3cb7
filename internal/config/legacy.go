package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/yuncengfeihou/usage-tracker2/internal/migrate"
)

func init() {
	migrate.Config.Register(migrate.Step{
		Version:     2,
		Description: "upgrade bare threshold values to {value, enabled} tables",
		Apply:       upgradeLegacyThresholds,
	})
}

// upgradeLegacyThresholds rewrites a v1 config. Version 1 stored thresholds
// as bare arrays (duration_thresholds = [1, 2], fixed_time_thresholds =
// ["22:00"]) and spelled the toast notify type "toastr".
func upgradeLegacyThresholds(data []byte) ([]byte, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse v1 config: %w", err)
	}

	if tracker, ok := doc["tracker"].(map[string]any); ok {
		if nt, ok := tracker["notify_type"].(string); ok && nt == "toastr" {
			tracker["notify_type"] = "toast"
		}
		if raw, ok := tracker["duration_thresholds"]; ok {
			list, err := decodeDurations(raw)
			if err != nil {
				return nil, err
			}
			tracker["duration_thresholds"] = list
		}
		if raw, ok := tracker["fixed_time_thresholds"]; ok {
			list, err := decodeFixedTimes(raw)
			if err != nil {
				return nil, err
			}
			tracker["fixed_time_thresholds"] = list
		}
	}
	doc["version"] = 2

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode v2 config: %w", err)
	}
	return buf.Bytes(), nil
}
