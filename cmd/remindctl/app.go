package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tazhate/remindbot/config"
	"github.com/tazhate/remindbot/internal/domain"
	"github.com/tazhate/remindbot/internal/service"
	"github.com/tazhate/remindbot/internal/storage"
	"github.com/urfave/cli"
)

var (
	configFlag = cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to YAML config",
		EnvVar: "REMINDBOT_CONFIG",
	}
	ownerFlag = cli.StringFlag{
		Name:  "owner, o",
		Usage: "reminder owner (Telegram chat id)",
	}
)

// newApp builds the read-only inspection CLI. Nothing here writes the snapshot.
func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "remindctl"
	app.HelpName = "remindctl"
	app.Usage = "Inspect the reminder store offline."
	app.Writer = out
	// main decides the exit code
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Flags = []cli.Flag{configFlag}
	app.Commands = []cli.Command{
		{
			Name:   "list",
			Usage:  "list upcoming reminders of an owner",
			Flags:  []cli.Flag{ownerFlag},
			Action: listAction,
		},
		{
			Name:   "history",
			Usage:  "list all reminders of an owner, sent included",
			Flags:  []cli.Flag{ownerFlag},
			Action: historyAction,
		},
		{
			Name:  "due",
			Usage: "list reminders the scanner would deliver at the given instant",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "at",
					Usage: "instant in RFC3339 format (default: now)",
				},
			},
			Action: dueAction,
		},
		{
			Name:  "export",
			Usage: "write upcoming reminders of an owner as iCalendar",
			Flags: []cli.Flag{
				ownerFlag,
				cli.StringFlag{
					Name:  "out",
					Usage: "output file (default: stdout)",
				},
			},
			Action: exportAction,
		},
	}
	return app
}

func openStore(ctx *cli.Context) (*service.ReminderService, func(), error) {
	cfg, err := config.Load(ctx.GlobalString("config"))
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewReminderService(store, cfg.Timezone)
	if err := svc.Load(); err != nil {
		store.Close()
		return nil, nil, err
	}
	return svc, func() { store.Close() }, nil
}

func requireOwner(ctx *cli.Context) (string, error) {
	owner := ctx.String("owner")
	if owner == "" {
		return "", cli.NewExitError("--owner is required", 2)
	}
	return owner, nil
}

func listAction(ctx *cli.Context) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	svc, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	printReminders(ctx.App.Writer, svc, svc.ListActive(owner), "no upcoming reminders")
	return nil
}

func historyAction(ctx *cli.Context) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	svc, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	printReminders(ctx.App.Writer, svc, svc.History(owner), "no reminders")
	return nil
}

func dueAction(ctx *cli.Context) error {
	at := time.Now()
	if v := ctx.String("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid --at %q: use RFC3339", v), 2)
		}
		at = t
	}
	svc, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	printReminders(ctx.App.Writer, svc, svc.DueSince(at), "nothing due")
	return nil
}

func exportAction(ctx *cli.Context) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	svc, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if len(svc.ListActive(owner)) == 0 {
		return cli.NewExitError("no upcoming reminders to export", 1)
	}

	w := ctx.App.Writer
	if path := ctx.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return service.NewCalendarService(svc).ExportActive(w, owner)
}

func printReminders(w io.Writer, svc *service.ReminderService, reminders []domain.Reminder, empty string) {
	if len(reminders) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	tz := svc.Timezone()
	for _, r := range reminders {
		fmt.Fprintf(w, "%s %-24s due %s  event %s  %s\n",
			r.StatusEmoji(),
			r.ID,
			r.DueAt().In(tz).Format("2006-01-02 15:04"),
			r.EventTime.In(tz).Format("2006-01-02 15:04"),
			r.Title)
	}
}
