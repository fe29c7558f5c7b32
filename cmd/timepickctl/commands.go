package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mkmk6794/timepick/internal/message"
	"github.com/mkmk6794/timepick/internal/schedule"
	"github.com/mkmk6794/timepick/internal/seed"
	"github.com/mkmk6794/timepick/internal/store"
)

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "timepickctl",
		Usage:     "Inspect and maintain a TimePick database.",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "driver", Value: store.DriverBBolt, EnvVars: []string{"STORE_DRIVER"}, Usage: "store driver (bbolt or sqlite)"},
			&cli.StringFlag{Name: "db", Value: "/data/timepick.db", EnvVars: []string{"DB_PATH"}, Usage: "database file"},
		},
		Commands: []*cli.Command{
			summaryCommand(),
			messagesCommand(),
			exportCommand(),
			importCommand(),
		},
	}
}

func openStore(c *cli.Context) (store.Store, error) {
	st, err := store.Open(c.String("driver"), c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Print the availability of one event, best date first, or all events without a token.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "organizer-token", Aliases: []string{"t"}, Usage: "organizer token of the event"},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()
			svc := schedule.NewService(st)
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			defer w.Flush()

			tok := c.String("organizer-token")
			if tok == "" {
				rows, err := svc.Overview(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tRESPONSES\tRATE")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d%%\n", r.ID, r.Title, r.Status, r.TotalResponses, r.Participants, r.ResponseRate)
				}
				return nil
			}

			view, err := svc.GetEventForOrganizer(c.Context, tok)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s (%s)\tresponses %d/%d\t%d%%\n", view.Event.Title, view.Event.Status,
				view.Summary.TotalResponses, len(view.Event.Participants), view.Summary.ResponseRate)
			fmt.Fprintln(w, "DATE\tTIME\tAVAILABLE\tPERCENT\tWHO")
			for _, d := range view.Ranked {
				fmt.Fprintf(w, "%s\t%s~%s\t%d\t%d%%\t%v\n", d.Date, d.StartTime, d.EndTime, d.AvailableCount, d.Percentage, d.AvailableParticipants)
			}
			return nil
		},
	}
}

func messagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "messages",
		Usage: "Print the confirmation email and SMS of a confirmed event.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "organizer-token", Aliases: []string{"t"}, Required: true},
			&cli.StringFlag{Name: "ics", Usage: "also write the calendar entry to this file"},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			view, err := schedule.NewService(st).GetEventForOrganizer(c.Context, c.String("organizer-token"))
			if err != nil {
				return err
			}
			msgs, err := message.ConfirmationFor(view.Event)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Subject: %s\n\n%s\n\n--- SMS ---\n%s\n", msgs.Email.Subject, msgs.Email.Body, msgs.SMS)

			if path := c.String("ics"); path != "" {
				data, err := message.Calendar(view.Event)
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write all events and responses as JSON.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, stdout when empty"},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := st.Export(c.Context)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding snapshot: %w", err)
			}

			if path := c.String("out"); path != "" {
				return os.WriteFile(path, data, 0o600)
			}
			_, err = fmt.Fprintln(c.App.Writer, string(data))
			return err
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Add the events of a JSON snapshot (legacy data.json works) that are not stored yet.",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("import needs a snapshot file")
			}

			snap, err := seed.ReadFile(path)
			if err != nil {
				return err
			}

			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			added, err := st.Import(c.Context, snap)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "imported %d of %d events\n", added, len(snap.Events))
			return nil
		},
	}
}
