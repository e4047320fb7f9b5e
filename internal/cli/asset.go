package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjgribel/eeng-core/internal/domain"
)

func init() {
	assetCmd.AddCommand(assetStatusCmd)
	rootCmd.AddCommand(assetCmd)
}

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Inspect asset load state",
}

var assetStatusCmd = &cobra.Command{
	Use:   "status GUID",
	Short: "Report an asset's current load state and lease count",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetStatus,
}

func runAssetStatus(cmd *cobra.Command, args []string) error {
	guid, err := domain.ParseGUID(args[0])
	if err != nil {
		return fmt.Errorf("invalid asset guid %q: %w", args[0], err)
	}
	e, err := newEngineHandle()
	if err != nil {
		return err
	}
	defer e.Close()

	state, errMsg, ok := e.rm.GetStatus(guid)
	if !ok {
		fmt.Println("not tracked")
		return nil
	}
	leases := e.rm.TotalLeases(guid)
	if errMsg != "" {
		fmt.Printf("%s leases=%d error=%q\n", state, leases, errMsg)
		return nil
	}
	fmt.Printf("%s leases=%d\n", state, leases)
	return nil
}
