package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cjgribel/eeng-core/internal/domain"
)

func init() {
	batchCmd.AddCommand(batchListCmd, batchCreateCmd, batchLoadCmd, batchUnloadCmd, batchSaveCmd)
	rootCmd.AddCommand(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect and drive batch load/save/unload lifecycles",
}

var batchListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every batch known to the on-disk catalog",
	RunE:    runBatchList,
}

func runBatchList(cmd *cobra.Command, args []string) error {
	e, err := newEngineHandle()
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.catalog.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tLAST RESULT")
	for _, ent := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ent.ID, ent.Name, ent.State, ent.LastResult)
	}
	return w.Flush()
}

var batchCreateCmd = &cobra.Command{
	Use:   "create NAME FILENAME",
	Short: "Register a new, unloaded batch",
	Args:  cobra.ExactArgs(2),
	RunE:  runBatchCreate,
}

func runBatchCreate(cmd *cobra.Command, args []string) error {
	e, err := newEngineHandle()
	if err != nil {
		return err
	}
	defer e.Close()

	id := domain.NewGUID()
	e.batches.CreateBatch(id, args[0], args[1])
	if err := e.touch(id, args[0], args[1], "unloaded", ""); err != nil {
		return err
	}
	fmt.Println(id.String())
	return nil
}

var batchLoadCmd = &cobra.Command{
	Use:   "load ID",
	Short: "Load a batch's entities and asset closure",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchLoad,
}

func runBatchLoad(cmd *cobra.Command, args []string) error {
	return withKnownBatch(args[0], func(e *engineHandle, id domain.GUID, ent entryView) error {
		result, err := e.batches.QueueLoad(context.Background(), id).Wait()
		return reportTaskResult(e, id, ent, "loaded", result, err)
	})
}

var batchUnloadCmd = &cobra.Command{
	Use:   "unload ID",
	Short: "Unload a batch, releasing its entities and asset leases",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchUnload,
}

func runBatchUnload(cmd *cobra.Command, args []string) error {
	return withKnownBatch(args[0], func(e *engineHandle, id domain.GUID, ent entryView) error {
		result, err := e.batches.QueueUnload(context.Background(), id).Wait()
		return reportTaskResult(e, id, ent, "unloaded", result, err)
	})
}

var batchSaveCmd = &cobra.Command{
	Use:   "save ID",
	Short: "Save a loaded batch back to its file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchSave,
}

func runBatchSave(cmd *cobra.Command, args []string) error {
	return withKnownBatch(args[0], func(e *engineHandle, id domain.GUID, ent entryView) error {
		result, err := e.batches.QueueSaveBatch(id).Wait()
		return reportTaskResult(e, id, ent, "loaded", result, err)
	})
}

type entryView struct {
	Name     string
	Filename string
}

// withKnownBatch resolves id against the on-disk catalog, re-registers it
// with a fresh in-memory Registry (every CLI invocation starts with an
// empty one), and hands control to fn.
func withKnownBatch(idStr string, fn func(e *engineHandle, id domain.GUID, ent entryView) error) error {
	id, err := domain.ParseGUID(idStr)
	if err != nil {
		return fmt.Errorf("invalid batch id %q: %w", idStr, err)
	}
	e, err := newEngineHandle()
	if err != nil {
		return err
	}
	defer e.Close()

	cat, ok, err := e.catalog.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("batch %s is not in the catalog; create it first", id)
	}
	e.batches.CreateBatch(id, cat.Name, cat.Filename)
	return fn(e, id, entryView{Name: cat.Name, Filename: cat.Filename})
}

func reportTaskResult(e *engineHandle, id domain.GUID, ent entryView, successState string, result domain.TaskResult, err error) error {
	if err != nil {
		_ = e.touch(id, ent.Name, ent.Filename, "error", err.Error())
		return err
	}
	if !result.Success {
		lastResult := fmt.Sprintf("%v", result.Errors)
		_ = e.touch(id, ent.Name, ent.Filename, "error", lastResult)
		return fmt.Errorf("batch task failed: %v", result.Errors)
	}
	if err := e.touch(id, ent.Name, ent.Filename, successState, ""); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}
