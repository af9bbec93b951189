// ABOUTME: Serialization of the free-form manifest config table for storage

package catalog

import "encoding/json"

// encodeConfig marshals the manifest's free-form config table for the
// config_json column. Empty tables store as an empty string, not "{}".
func encodeConfig(cfg map[string]any) string {
	if len(cfg) == 0 {
		return ""
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return string(data)
}
