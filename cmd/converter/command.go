package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the CLI tree
type Command struct {
	// Name is the command name as typed by the user
	Name string

	// Summary is shown in the parent's help listing
	Summary string

	// Usage overrides the synthesized usage line
	Usage string

	// Flags returns the command's flag set; nil means no flags
	Flags func() *pflag.FlagSet

	// Subcommands are dispatched by the first positional argument
	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing
	Run func(args []string) error

	// Output receives help text; inherited from the parent when nil
	Output io.Writer

	parent *Command
}

// Execute parses args and dispatches to a subcommand or Run
func (command *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		command.PrintHelp(command.output())
		return nil
	}

	if len(command.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		for _, subcommand := range command.Subcommands {
			if subcommand.Name == args[0] {
				subcommand.parent = command
				return subcommand.Execute(args[1:])
			}
		}
		if command.Run == nil {
			return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.", args[0], command.fullName())
		}
	}

	if len(command.Subcommands) > 0 && command.Run == nil {
		command.PrintHelp(command.output())
		return fmt.Errorf("subcommand required")
	}

	if command.Flags != nil {
		flagSet := command.Flags()
		flagSet.SetOutput(io.Discard)
		if err := flagSet.Parse(args); err != nil {
			return fmt.Errorf("%s\n\nRun '%s --help' for usage.", err, command.fullName())
		}
		args = flagSet.Args()
	}

	return command.Run(args)
}

// PrintHelp writes usage, subcommands and flags to w
func (command *Command) PrintHelp(w io.Writer) {
	if command.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", command.Summary)
	}

	switch {
	case command.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", command.Usage)
	case len(command.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", command.fullName())
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", command.fullName())
	}

	if len(command.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, subcommand := range command.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", subcommand.Name, subcommand.Summary)
		}
		table.Flush()
	}

	if command.Flags != nil {
		var flagHelp strings.Builder
		flagSet := command.Flags()
		flagSet.SetOutput(&flagHelp)
		flagSet.PrintDefaults()
		if flagHelp.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", flagHelp.String())
		}
	}
}

func (command *Command) output() io.Writer {
	for node := command; node != nil; node = node.parent {
		if node.Output != nil {
			return node.Output
		}
	}
	return os.Stderr
}

func (command *Command) fullName() string {
	if command.parent == nil {
		return command.Name
	}
	return command.parent.fullName() + " " + command.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
