package statemachine

import "github.com/conflux-sh/conflux/internal/model"

// QueryType tags the variant of a Query passed to Lookup.
type QueryType uint8

const (
	QueryResolve QueryType = iota
	QueryGetConfig
	QueryListVersions
	QueryGetVersion
)

// Query is the read-only counterpart to Command: it never goes through
// consensus, so it is passed directly to Lookup rather than proposed and
// logged.
type Query struct {
	Type QueryType

	// QueryResolve
	Namespace    model.Namespace
	Name         string
	ClientLabels map[string]string

	// QueryGetConfig, QueryListVersions, QueryGetVersion
	ConfigID uint64

	// QueryListVersions
	Cursor uint64
	Limit  int

	// QueryGetVersion
	VersionID uint64
}

// ResolveResult is Lookup's return value for QueryResolve.
type ResolveResult struct {
	Version *model.ConfigVersion
	Found   bool
}

// GetConfigResult is Lookup's return value for QueryGetConfig.
type GetConfigResult struct {
	Config *model.Config
	Found  bool
}

// ListVersionsResult is Lookup's return value for QueryListVersions.
// Versions is ordered by ascending VersionID; NextCursor is the VersionID
// to pass as Cursor on the next call, valid only when HasMore is true.
type ListVersionsResult struct {
	Versions   []model.ConfigVersion
	NextCursor uint64
	HasMore    bool
}

// GetVersionResult is Lookup's return value for QueryGetVersion.
type GetVersionResult struct {
	Version *model.ConfigVersion
	Found   bool
}
