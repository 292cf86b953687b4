package tools

import (
	"context"
	"fmt"
)

// ReloadSettingsTool re-reads the settings file and rebuilds every account
type ReloadSettingsTool struct {
	reload ReloadFunc
}

// NewReloadSettingsTool creates a new reload settings tool
func NewReloadSettingsTool(reload ReloadFunc) *ReloadSettingsTool {
	return &ReloadSettingsTool{reload: reload}
}

// Name returns the tool name
func (t *ReloadSettingsTool) Name() string {
	return "reload_settings"
}

// Description returns the tool description
func (t *ReloadSettingsTool) Description() string {
	return "Reload account settings. Open connections are closed and folder state is rebuilt on next use; cached mail is kept."
}

// InputSchema returns the JSON schema for tool inputs
func (t *ReloadSettingsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *ReloadSettingsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if err := t.reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to reload settings: %w", err)
	}
	return map[string]interface{}{
		"success": true,
		"message": "Settings reloaded",
	}, nil
}
