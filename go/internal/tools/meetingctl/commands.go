package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mcdev12/flowminder/go/internal/meeting/bus"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/spf13/cobra"
)

func newMigrateCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Migrate(cmd.Context(), deps.DSN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.Status(cmd.Context(), deps.DSN)
		},
	})

	return cmd
}

func newRosterCmd(deps *Dependencies, publish publishFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Send provider join and leave events",
	}

	var name string
	join := &cobra.Command{
		Use:   "join <meeting-id> <user-id>",
		Short: "Mark a participant as in the meeting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bus.ParticipantJoined(args[0], args[1], name, deps.Clock.Now())
			if err != nil {
				return err
			}
			return publish(cmd, env)
		},
	}
	join.Flags().StringVarP(&name, "name", "n", "", "Display name to store for the user")

	leave := &cobra.Command{
		Use:   "leave <meeting-id> <user-id>",
		Short: "Mark a participant as gone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bus.ParticipantLeft(args[0], args[1], deps.Clock.Now())
			if err != nil {
				return err
			}
			return publish(cmd, env)
		},
	}

	cmd.AddCommand(join, leave)
	return cmd
}

func newAgendaCmd(deps *Dependencies, publish publishFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Inspect and refresh meeting agendas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reload <meeting-id>",
		Short: "Make running gateways reload the agenda from the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bus.AgendaChanged(args[0], deps.Clock.Now())
			if err != nil {
				return err
			}
			return publish(cmd, env)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list <meeting-id>",
		Short: "Print the stored agenda in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := deps.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			items, err := store.ListAgendaItems(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No agenda items")
				return nil
			}
			return printAgenda(cmd.OutOrStdout(), items)
		},
	})

	return cmd
}

func printAgenda(out io.Writer, items []models.AgendaItem) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tLABEL\tMINUTES\tSTATUS")
	for i, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", i+1, item.ID, item.Label, item.DurationSeconds/60, item.Status())
	}
	return w.Flush()
}

func newSettingsCmd(deps *Dependencies, publish publishFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage stored timer settings",
	}

	var file string
	put := &cobra.Command{
		Use:   "put <meeting-id>",
		Short: "Store timer settings from a JSON file and broadcast them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := readSettings(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			store, closeStore, err := deps.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			stored, err := store.SaveTimerSettings(cmd.Context(), args[0], settings)
			if err != nil {
				return err
			}
			env, err := bus.TimerSettingsUpdated(args[0], stored, deps.Clock.Now())
			if err != nil {
				return err
			}
			return publish(cmd, env)
		},
	}
	put.Flags().StringVarP(&file, "file", "f", "", "JSON settings file, - for stdin")
	_ = put.MarkFlagRequired("file")

	cmd.AddCommand(put)
	return cmd
}

func readSettings(stdin io.Reader, file string) (models.TimerSettings, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return models.TimerSettings{}, fmt.Errorf("reading settings: %w", err)
	}

	var settings models.TimerSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.TimerSettings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return settings.Normalize(), nil
}
