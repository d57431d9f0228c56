package confluxd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/raftnode"
	"github.com/conflux-sh/conflux/rpc/client"
)

// configCmd groups every data-plane operation a caller runs against an
// already-running cluster.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, publish and resolve configurations against a running cluster",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
}

func init() {
	setupClientFlags(configCmd)

	configCmd.AddCommand(createConfigCmd, createVersionCmd, updateReleasesCmd,
		publishCmd, deleteConfigCmd, purgeVersionsCmd,
		approveProposalCmd, rejectProposalCmd, executeProposalCmd,
		resolveCmd, getConfigCmd, listVersionsCmd, getVersionCmd)
}

func newClient() (*client.Client, error) {
	s, err := getSerializer()
	if err != nil {
		return nil, err
	}
	t, err := getClientTransport()
	if err != nil {
		return nil, err
	}
	return client.NewConfluxClient(getClientConfig(), t, s)
}

func subjectID() string { return viper.GetString("subject") }

func consistency() raftnode.Consistency {
	switch strings.ToLower(viper.GetString("consistency")) {
	case "stale":
		return raftnode.Stale
	case "leader-lease", "leaderlease":
		return raftnode.LeaderLease
	default:
		return raftnode.Linearizable
	}
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(viper.GetInt("timeout"))*time.Second)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseLabels(raw string) map[string]string {
	labels := map[string]string{}
	if raw == "" {
		return labels
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			labels[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return labels
}

func parseNamespace(raw string) (model.Namespace, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return model.Namespace{}, fmt.Errorf("namespace must be tenant/app/env, got %q", raw)
	}
	return model.Namespace{Tenant: parts[0], App: parts[1], Env: parts[2]}, nil
}

func readContent(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

var createConfigCmd = &cobra.Command{
	Use:   "create-config",
	Short: "Create a new configuration with its first version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, err := parseNamespace(viper.GetString("namespace"))
		if err != nil {
			return err
		}
		content, err := readContent(viper.GetString("file"))
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.CreateConfig(ctx, subjectID(), ns, viper.GetString("name"), content,
			model.Format(strings.ToUpper(viper.GetString("format"))),
			[]model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}}, 0)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var createVersionCmd = &cobra.Command{
	Use:   "create-version",
	Short: "Add a new version to an existing configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readContent(viper.GetString("file"))
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.CreateVersion(ctx, subjectID(), viper.GetUint64("config-id"), content,
			model.Format(strings.ToUpper(viper.GetString("format"))), viper.GetString("description"), 0)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var updateReleasesCmd = &cobra.Command{
	Use:   "update-release-rules",
	Short: "Replace a configuration's label-targeted release rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		releases, err := parseReleaseRules(viper.GetString("rules"))
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.UpdateReleaseRules(ctx, subjectID(), viper.GetUint64("config-id"), releases, 0)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Create a version and update release rules in one proposal",
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readContent(viper.GetString("file"))
		if err != nil {
			return err
		}
		releases, err := parseReleaseRules(viper.GetString("rules"))
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.Publish(ctx, subjectID(), viper.GetUint64("config-id"), content,
			model.Format(strings.ToUpper(viper.GetString("format"))), releases, 0)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var deleteConfigCmd = &cobra.Command{
	Use:   "delete-config",
	Short: "Delete a configuration and all its versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.DeleteConfig(ctx, subjectID(), viper.GetUint64("config-id"))
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var purgeVersionsCmd = &cobra.Command{
	Use:   "purge-versions",
	Short: "Purge unreferenced versions (protects released and latest versions)",
	RunE: func(cmd *cobra.Command, args []string) error {
		versionIDs, err := parseUint64List(viper.GetString("version-ids"))
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.PurgeVersions(ctx, subjectID(), map[uint64][]uint64{viper.GetUint64("config-id"): versionIDs})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var approveProposalCmd = &cobra.Command{
	Use:   "approve-proposal",
	Short: "Approve a pending release proposal",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.ApproveProposal(ctx, subjectID(), viper.GetUint64("proposal-id"), 0)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var rejectProposalCmd = &cobra.Command{
	Use:   "reject-proposal",
	Short: "Reject a pending release proposal",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.RejectProposal(ctx, subjectID(), viper.GetUint64("proposal-id"), 0)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var executeProposalCmd = &cobra.Command{
	Use:   "execute-proposal",
	Short: "Execute an approved release proposal",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.ExecuteProposal(ctx, subjectID(), viper.GetUint64("proposal-id"))
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve which version applies to a client's labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, err := parseNamespace(viper.GetString("namespace"))
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		res, err := c.Resolve(ctx, subjectID(), ns, viper.GetString("name"), parseLabels(viper.GetString("labels")), consistency())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var getConfigCmd = &cobra.Command{
	Use:   "get-config",
	Short: "Fetch a configuration's metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		res, err := c.GetConfig(ctx, subjectID(), viper.GetUint64("config-id"), consistency())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var listVersionsCmd = &cobra.Command{
	Use:   "list-versions",
	Short: "Page through a configuration's version history",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		res, err := c.ListVersions(ctx, subjectID(), viper.GetUint64("config-id"), viper.GetUint64("cursor"), viper.GetInt("limit"), consistency())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var getVersionCmd = &cobra.Command{
	Use:   "get-version",
	Short: "Fetch one immutable configuration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		res, err := c.GetVersion(ctx, subjectID(), viper.GetUint64("config-id"), viper.GetUint64("version-id"), consistency())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	createConfigCmd.Flags().String("namespace", "", wrapString("tenant/app/env"))
	createConfigCmd.Flags().String("name", "", wrapString("configuration name, e.g. app.yaml"))
	createConfigCmd.Flags().String("file", "-", wrapString("content file, or - for stdin"))
	createConfigCmd.Flags().String("format", "yaml", wrapString("JSON, TOML, YAML, XML, INI, PROPERTIES, or RAW"))

	createVersionCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))
	createVersionCmd.Flags().String("file", "-", wrapString("content file, or - for stdin"))
	createVersionCmd.Flags().String("format", "yaml", wrapString("content format"))
	createVersionCmd.Flags().String("description", "", wrapString("human-readable change description"))

	updateReleasesCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))
	updateReleasesCmd.Flags().String("rules", "", wrapString("release rules as priority:version_id:k=v,k=v;... entries"))

	publishCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))
	publishCmd.Flags().String("file", "-", wrapString("content file, or - for stdin"))
	publishCmd.Flags().String("format", "yaml", wrapString("content format"))
	publishCmd.Flags().String("rules", "", wrapString("release rules as priority:version_id:k=v,k=v;... entries"))

	deleteConfigCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))

	purgeVersionsCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))
	purgeVersionsCmd.Flags().String("version-ids", "", wrapString("comma-separated version ids to purge"))

	approveProposalCmd.Flags().Uint64("proposal-id", 0, wrapString("proposal id"))
	rejectProposalCmd.Flags().Uint64("proposal-id", 0, wrapString("proposal id"))
	executeProposalCmd.Flags().Uint64("proposal-id", 0, wrapString("proposal id"))

	resolveCmd.Flags().String("namespace", "", wrapString("tenant/app/env"))
	resolveCmd.Flags().String("name", "", wrapString("configuration name"))
	resolveCmd.Flags().String("labels", "", wrapString("client labels as k=v,k=v"))

	getConfigCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))

	listVersionsCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))
	listVersionsCmd.Flags().Uint64("cursor", 0, wrapString("version id to resume after"))
	listVersionsCmd.Flags().Int("limit", 50, wrapString("maximum versions to return"))

	getVersionCmd.Flags().Uint64("config-id", 0, wrapString("configuration id"))
	getVersionCmd.Flags().Uint64("version-id", 0, wrapString("version id"))
}

// parseReleaseRules parses "priority:version_id:k=v,k=v;priority:version_id"
// entries into model.Release values, the CLI's plain-text encoding of the
// release list update-release-rules and publish both send.
func parseReleaseRules(raw string) ([]model.Release, error) {
	var releases []model.Release
	if raw == "" {
		return releases, nil
	}
	for _, entry := range strings.Split(raw, ";") {
		fields := strings.SplitN(entry, ":", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("invalid release rule %q (expected priority:version_id[:labels])", entry)
		}
		priority, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid priority in rule %q: %w", entry, err)
		}
		versionID, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid version id in rule %q: %w", entry, err)
		}
		labels := map[string]string{}
		if len(fields) == 3 {
			labels = parseLabels(fields[2])
		}
		releases = append(releases, model.Release{Labels: labels, VersionID: versionID, Priority: int32(priority)})
	}
	return releases, nil
}

func parseUint64List(raw string) ([]uint64, error) {
	var out []uint64
	if raw == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid version id %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
