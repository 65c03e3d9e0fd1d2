package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/dalfonso89/currency-converter/internal/api"
	"github.com/dalfonso89/currency-converter/internal/app"
	"github.com/dalfonso89/currency-converter/internal/installer"
	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/service"
)

// Opener builds the component graph for one command
type Opener func(ctx context.Context) (*app.App, error)

type cli struct {
	ctx  context.Context
	out  io.Writer
	open Opener
}

func newCLI(ctx context.Context, out io.Writer, open Opener) *cli {
	return &cli{ctx: ctx, out: out, open: open}
}

// withApp opens the graph for the duration of run
func (c *cli) withApp(run func(application *app.App) error) error {
	application, err := c.open(c.ctx)
	if err != nil {
		return err
	}
	defer application.Close()
	return run(application)
}

func (c *cli) root() *Command {
	return &Command{
		Name:    "converter",
		Summary: "Convert currencies, browse history and manage application updates",
		Output:  c.out,
		Subcommands: []*Command{
			c.convertCommand(),
			c.ratesCommand(),
			c.historyCommand(),
			c.updateCommand(),
			c.themeCommand(),
		},
	}
}

func (c *cli) convertCommand() *Command {
	return &Command{
		Name:    "convert",
		Summary: "Convert an amount between two currencies",
		Usage:   "converter convert AMOUNT FROM TO",
		Run: func(args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("usage: converter convert AMOUNT FROM TO")
			}
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}

			return c.withApp(func(application *app.App) error {
				result, err := application.Engine.Convert(c.ctx, amount, args[1], args[2])
				if err != nil {
					return describeConversionError(err)
				}

				source := "live"
				if result.FromCache {
					source = "cached"
				}
				fmt.Fprintf(c.out, "%s = %s\n",
					api.FormatAmount(result.Amount, result.From),
					color.New(color.FgGreen, color.Bold).Sprint(api.FormatAmount(result.Converted, result.To)))
				fmt.Fprintf(c.out, "rate %.6f (%s)\n", result.Rate, source)
				return nil
			})
		},
	}
}

func (c *cli) ratesCommand() *Command {
	return &Command{
		Name:    "rates",
		Summary: "List exchange rates for a base currency",
		Usage:   "converter rates BASE",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: converter rates BASE")
			}

			return c.withApp(func(application *app.App) error {
				snapshot, fromCache, err := application.Engine.Rates(c.ctx, args[0])
				if err != nil {
					return describeConversionError(err)
				}

				currencies := make([]string, 0, len(snapshot.Rates))
				for currency := range snapshot.Rates {
					currencies = append(currencies, currency)
				}
				sort.Strings(currencies)

				fmt.Fprintf(c.out, "Base %s, fetched %s (cached: %t)\n",
					snapshot.BaseCurrency, snapshot.FetchedAt.Local().Format(time.RFC1123), fromCache)
				table := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				for _, currency := range currencies {
					fmt.Fprintf(table, "%s\t%.6f\n", currency, snapshot.Rates[currency])
				}
				return table.Flush()
			})
		},
	}
}

func (c *cli) historyCommand() *Command {
	var (
		limit    int
		clearAll bool
		follow   bool
	)
	return &Command{
		Name:    "history",
		Summary: "Show recent conversions",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.IntVarP(&limit, "limit", "n", 0, "number of conversions to show (default from configuration)")
			flagSet.BoolVar(&clearAll, "clear", false, "delete the whole history")
			flagSet.BoolVarP(&follow, "follow", "f", false, "keep printing the list as it changes")
			return flagSet
		},
		Run: func(args []string) error {
			return c.withApp(func(application *app.App) error {
				if clearAll {
					deleted, err := application.History.Clear(c.ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.out, "Deleted %d conversions\n", deleted)
					return nil
				}

				size := limit
				if size <= 0 {
					size = application.Config.HistoryRecentLimit
				}

				if !follow {
					records, err := application.History.Recent(c.ctx, size)
					if err != nil {
						return err
					}
					c.printHistory(records)
					return nil
				}

				updates, unsubscribe, err := application.History.Subscribe(c.ctx, size)
				if err != nil {
					return err
				}
				defer unsubscribe()
				for {
					select {
					case records, ok := <-updates:
						if !ok {
							return nil
						}
						c.printHistory(records)
					case <-c.ctx.Done():
						return nil
					}
				}
			})
		},
	}
}

func (c *cli) printHistory(records []models.ConversionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "No conversions yet")
		return
	}
	table := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, record := range records {
		fmt.Fprintf(table, "%s\t%s\t→\t%s\n",
			record.Timestamp.Local().Format("2006-01-02 15:04"),
			api.FormatAmount(record.Amount, record.FromCurrency),
			api.FormatAmount(record.ConvertedAmount, record.ToCurrency))
	}
	table.Flush()
}

func (c *cli) updateCommand() *Command {
	var force bool
	return &Command{
		Name:    "update",
		Summary: "Check for, download and install application updates",
		Subcommands: []*Command{
			{
				Name:    "check",
				Summary: "Query the release feed",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
					flagSet.BoolVar(&force, "force", false, "ignore the check interval")
					return flagSet
				},
				Run: func(args []string) error {
					return c.withApp(func(application *app.App) error {
						c.printCheck(application.Updates.CheckForUpdates(c.ctx, force))
						return nil
					})
				},
			},
			{
				Name:    "download",
				Summary: "Download a release artifact",
				Usage:   "converter update download URL NAME",
				Run: func(args []string) error {
					if len(args) != 2 {
						return fmt.Errorf("usage: converter update download URL NAME")
					}
					return c.withApp(func(application *app.App) error {
						return c.download(application, args[0], args[1])
					})
				},
			},
			{
				Name:    "install",
				Summary: "Verify and install a downloaded artifact",
				Usage:   "converter update install NAME",
				Run: func(args []string) error {
					if len(args) != 1 {
						return fmt.Errorf("usage: converter update install NAME")
					}
					return c.withApp(func(application *app.App) error {
						return c.printInstall(application.Installer.Install(c.ctx, args[0]), "Installed")
					})
				},
			},
			{
				Name:    "uninstall",
				Summary: "Remove the installed application",
				Run: func(args []string) error {
					return c.withApp(func(application *app.App) error {
						return c.printInstall(application.Installer.UninstallCurrent(c.ctx), "Uninstalled")
					})
				},
			},
		},
	}
}

func (c *cli) printCheck(result models.UpdateCheckResult) {
	switch {
	case result.Error != "":
		color.New(color.FgYellow).Fprintln(c.out, result.Error)
	case !result.HasUpdate:
		fmt.Fprintln(c.out, "You are running the latest version")
	default:
		info := result.UpdateInfo
		headline := fmt.Sprintf("Update available: %s", info.LatestVersion)
		if info.IsForceUpdate {
			headline += " (required)"
		}
		color.New(color.FgGreen, color.Bold).Fprintln(c.out, headline)
		fmt.Fprintf(c.out, "Released %s, %s\n", info.ReleaseDate, info.FileSize)
		fmt.Fprintf(c.out, "Download: %s\n", info.DownloadURL)
		if info.ReleaseNotes != "" {
			fmt.Fprintf(c.out, "\n%s\n", info.ReleaseNotes)
		}
	}
}

func (c *cli) download(application *app.App, url, name string) error {
	redraw := isTerminal(c.out)
	width := barWidth(c.out)

	var last models.DownloadProgress
	for progress := range application.Installer.Download(c.ctx, url, name) {
		last = progress
		if progress.Error != "" {
			break
		}
		if redraw {
			fmt.Fprintf(c.out, "\r%s", renderBar(progress, width))
		} else {
			fmt.Fprintln(c.out, renderBar(progress, width))
		}
	}
	if redraw {
		fmt.Fprintln(c.out)
	}

	switch {
	case last.Error != "":
		return errors.New(last.Error)
	case !last.IsComplete:
		return fmt.Errorf("download of %s was interrupted", name)
	}
	fmt.Fprintf(c.out, "Saved %s\n", application.Installer.ArtifactPath(name))
	return nil
}

func (c *cli) printInstall(result installer.InstallResult, verb string) error {
	if err := result.Err(); err != nil {
		return err
	}
	if result.Manifest != nil {
		fmt.Fprintf(c.out, "%s %s %s\n", verb, result.Manifest.Package, result.Manifest.VersionName)
	} else {
		fmt.Fprintln(c.out, verb)
	}
	return nil
}

func (c *cli) themeCommand() *Command {
	show := func(dark bool) {
		if dark {
			fmt.Fprintln(c.out, "Theme: dark")
		} else {
			fmt.Fprintln(c.out, "Theme: light")
		}
	}
	set := func(dark bool) func(args []string) error {
		return func(args []string) error {
			return c.withApp(func(application *app.App) error {
				if err := application.Theme.SetDarkMode(c.ctx, dark); err != nil {
					return err
				}
				show(dark)
				return nil
			})
		}
	}

	return &Command{
		Name:    "theme",
		Summary: "Show or change the dark mode preference",
		Subcommands: []*Command{
			{
				Name:    "show",
				Summary: "Print the current theme",
				Run: func(args []string) error {
					return c.withApp(func(application *app.App) error {
						dark, err := application.Theme.IsDarkMode(c.ctx)
						if err != nil {
							return err
						}
						show(dark)
						return nil
					})
				},
			},
			{Name: "dark", Summary: "Enable dark mode", Run: set(true)},
			{Name: "light", Summary: "Disable dark mode", Run: set(false)},
			{
				Name:    "toggle",
				Summary: "Switch between dark and light",
				Run: func(args []string) error {
					return c.withApp(func(application *app.App) error {
						dark, err := application.Theme.Toggle(c.ctx)
						if err != nil {
							return err
						}
						show(dark)
						return nil
					})
				},
			},
		},
	}
}

// describeConversionError rewords engine errors for the terminal
func describeConversionError(err error) error {
	var conversionError *service.ConversionError
	if !errors.As(err, &conversionError) {
		return err
	}
	return fmt.Errorf("%s: %s", strings.ReplaceAll(conversionError.Kind.String(), "_", " "), conversionError.Message)
}
