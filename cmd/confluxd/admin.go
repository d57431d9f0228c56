package confluxd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// adminCmd groups the cluster's membership and leadership operations,
// kept separate from configCmd since these target the cluster topology
// rather than configuration data.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Cluster membership, leadership and node metrics operations",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
}

func init() {
	setupClientFlags(adminCmd)
	adminCmd.AddCommand(addLearnerCmd, changeMembershipCmd, removeMemberCmd, transferLeadershipCmd, metricsCmd)

	addLearnerCmd.Flags().Uint64("node-id", 0, wrapString("node id to add as a non-voting learner"))
	addLearnerCmd.Flags().String("address", "", wrapString("raft address of the new node"))

	changeMembershipCmd.Flags().Uint64("node-id", 0, wrapString("node id to promote to full voting member"))
	changeMembershipCmd.Flags().String("address", "", wrapString("raft address of the node"))

	removeMemberCmd.Flags().Uint64("node-id", 0, wrapString("node id to remove from the voting set"))

	transferLeadershipCmd.Flags().Uint64("target", 0, wrapString("node id to transfer leadership to, or 0 for any eligible peer"))
}

var addLearnerCmd = &cobra.Command{
	Use:   "add-learner",
	Short: "Stage a node as a non-voting learner",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		return c.AddLearner(ctx, subjectID(), viper.GetUint64("node-id"), viper.GetString("address"))
	},
}

var changeMembershipCmd = &cobra.Command{
	Use:   "change-membership",
	Short: "Promote a learner to a full voting member",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		return c.ChangeMembership(ctx, subjectID(), viper.GetUint64("node-id"), viper.GetString("address"))
	},
}

var removeMemberCmd = &cobra.Command{
	Use:   "remove-member",
	Short: "Remove a node from the voting set",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		return c.RemoveMember(ctx, subjectID(), viper.GetUint64("node-id"))
	},
}

var transferLeadershipCmd = &cobra.Command{
	Use:   "transfer-leadership",
	Short: "Ask the cluster to move leadership to another node",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		return c.TransferLeadership(ctx, subjectID(), viper.GetUint64("target"))
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print the contacted node's observability snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		m, err := c.Metrics(ctx, subjectID())
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}
