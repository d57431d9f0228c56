package statemachine

import "github.com/conflux-sh/conflux/internal/model"

// resolveVersionID picks the target version id for a client's labels:
// sort the rules, walk them in order, first subset match wins. It is pure
// and IO-free so it can be tested independently of the store; Lookup wraps
// it with the name-index lookup and the ConfigVersion load.
func resolveVersionID(cfg *model.Config, clientLabels map[string]string) (versionID uint64, found bool) {
	if len(cfg.Releases) == 0 {
		return 0, false
	}
	sorted := model.SortReleases(cfg.Releases)
	for _, r := range sorted {
		if r.Matches(clientLabels) {
			return r.VersionID, true
		}
	}
	return 0, false
}
