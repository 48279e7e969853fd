package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/jobmanager"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// ============================================================================
// queue
// ============================================================================

func buildQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Edit the workshop queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <craft> [quantity]",
		Short: "Append a craft to the queue",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			craft, err := findCraft(ws.catalog, args[0])
			if err != nil {
				return err
			}
			quantity := 1
			if len(args) == 2 {
				if quantity, err = parsePositive(args[1]); err != nil {
					return err
				}
			}
			if err := ws.jm.Add(craft.WorkshopItemID, quantity); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %dx %s\n", quantity, craft.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <index> <quantity>",
		Short: "Change the quantity of a queue entry (0 keeps it until it is reached)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: %q", jobmanager.ErrInvalidQuantity, args[1])
			}
			if err := ws.jm.SetQuantity(index, quantity); err != nil {
				return err
			}
			return printQueue(cmd.OutOrStdout(), ws.jm.Snapshot(), ws.catalog)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a queue entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			if err := ws.jm.Remove(index); err != nil {
				return err
			}
			return printQueue(cmd.OutOrStdout(), ws.jm.Snapshot(), ws.catalog)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the current craft and the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			return printQueue(cmd.OutOrStdout(), ws.jm.Snapshot(), ws.catalog)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-current",
		Short: "Forget the progress of the current craft",
		Long: `Forget the locally tracked progress of the current craft.
The project itself stays at the fabrication station and has to be finished
or cancelled in game.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			cancelled, err := ws.jm.CancelCurrent()
			if err != nil {
				return err
			}
			if cancelled {
				fmt.Fprintln(cmd.OutOrStdout(), "Current craft cleared")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No craft in progress")
			}
			return nil
		},
	})

	cmd.AddCommand(buildQueueImportCommand())
	cmd.AddCommand(buildQueueExportCommand())

	return cmd
}

func buildQueueImportCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: `Merge crafts from a text file ("3x Shark-class Bow" per line)`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}

			var data []byte
			if file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("failed to read queue file: %w", err)
			}

			items, unknown := jobmanager.ParseQueueText(string(data), ws.catalog)
			out := cmd.OutOrStdout()
			for _, u := range unknown {
				fmt.Fprintln(out, u.String())
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Nothing to import")
				return nil
			}

			count, err := ws.jm.ImportQueue(items)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Imported %d entries\n", count)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `queue text file ("-" for stdin)`)
	cmd.MarkFlagRequired("file")

	return cmd
}

func buildQueueExportCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the queue in the import format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}

			text := jobmanager.FormatQueueText(ws.jm.Snapshot().ItemQueue, ws.catalog)
			if file == "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}
			if err := os.WriteFile(file, []byte(text+"\n"), 0o644); err != nil {
				return fmt.Errorf("failed to write queue file: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "output", "o", "", "write to file instead of stdout")

	return cmd
}

// printQueue 以表格輸出目前製作與佇列
func printQueue(out io.Writer, state types.State, cat *catalog.Catalog) error {
	if cur := state.CurrentlyCraftedItem; cur != nil {
		craft, ok := cat.ByWorkshopItemID(cur.WorkshopItemID)
		phases := 0
		if ok {
			phases = len(craft.Phases)
		}
		status := "not started"
		if cur.StartedCrafting {
			status = fmt.Sprintf("phase %d/%d", min(int(cur.PhasesComplete)+1, phases), phases)
		}
		fmt.Fprintf(out, "Currently crafting: %s (%s)\n\n", cat.Name(cur.WorkshopItemID), status)
	}

	if len(state.ItemQueue) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tQTY\tCRAFT")
	for i, item := range state.ItemQueue {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", i, item.Quantity, cat.Name(item.WorkshopItemID))
	}
	fmt.Fprintf(tw, "\t%d\ttotal\n", state.QueueTotal())
	return tw.Flush()
}

// ============================================================================
// preset
// ============================================================================

func buildPresetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Save and reuse queue presets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name>",
		Short: "Save the current queue as a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			preset, err := ws.jm.SavePreset(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %q (%s)\n", preset.Name, preset.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <id|name>",
		Short: "Merge a preset into the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			count, err := ws.jm.ImportPreset(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			deleted, err := ws.jm.DeletePreset(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %q\n", deleted.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			presets := ws.jm.Snapshot().Presets
			if len(presets) == 0 {
				fmt.Fprintln(out, "No presets")
				return nil
			}
			for _, p := range presets {
				fmt.Fprintf(out, "%s  %s\n", p.ID, p.Name)
				for _, item := range p.ItemQueue {
					fmt.Fprintf(out, "    %dx %s\n", item.Quantity, ws.catalog.Name(item.WorkshopItemID))
				}
			}
			return nil
		},
	})

	return cmd
}
