package config

import (
	"reflect"
	"sort"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// safe structured attrs for logging. Secrets (API keys, passwords) are
// never included, only presence counts.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 8)

	if oldCfg.Immich != newCfg.Immich || oldCfg.Ntfy != newCfg.Ntfy {
		changed = append(changed, "servers")
		attrs = append(attrs,
			logx.String("immich.url", newCfg.Immich.URL),
			logx.String("ntfy.url", newCfg.Ntfy.URL),
		)
	}

	if !reflect.DeepEqual(oldCfg.Users, newCfg.Users) {
		changed = append(changed, "users")
		enabled := 0
		for _, u := range newCfg.Users {
			if u.IsEnabled() {
				enabled++
			}
		}
		attrs = append(attrs,
			logx.Int("users.count", len(newCfg.Users)),
			logx.Int("users.enabled", enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Settings, newCfg.Settings) {
		changed = append(changed, "settings")
		attrs = append(attrs,
			logx.Int("settings.windows", len(newCfg.Settings.NotificationWindows)),
			logx.Int("settings.memory_slots", newCfg.Settings.MemorySlots()),
			logx.Int("settings.person_slots", newCfg.Settings.PersonSlots()),
			logx.String("settings.log_level", newCfg.Settings.Level()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Messages, newCfg.Messages) ||
		!reflect.DeepEqual(oldCfg.PersonMessages, newCfg.PersonMessages) ||
		!reflect.DeepEqual(oldCfg.VideoMessages, newCfg.VideoMessages) ||
		!reflect.DeepEqual(oldCfg.VideoPersonMessages, newCfg.VideoPersonMessages) {
		changed = append(changed, "messages")
		attrs = append(attrs,
			logx.Int("messages.memory", len(newCfg.Messages)),
			logx.Int("messages.person", len(newCfg.PersonMessages)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
