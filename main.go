// netbox-secrets prints the plaintext of a secret stored in NetBox.
//
// It is meant to be called from automation, e.g. an Ansible pipe lookup:
//
//	{{ lookup('pipe', 'netbox-secrets lookup --device router1 --secret-name admin') }}
package main

import (
	"fmt"
	"os"

	"github.com/buildkite/netbox-secrets/clicommand"
	"github.com/buildkite/netbox-secrets/version"
	"github.com/urfave/cli"
)

const appHelpTemplate = `Usage:

  {{.Name}} <command> [options...]

Available commands are:

  {{range .Commands}}{{.Name}}{{with .ShortName}}, {{.}}{{end}}{{ "\t" }}{{.Usage}}
  {{end}}
Use "{{.Name}} <command> --help" for more information about a command.

`

func main() {
	cli.AppHelpTemplate = appHelpTemplate
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "%v version %v\n", c.App.Name, version.FullVersion()) //nolint:errcheck // nowhere to report it
	}

	app := cli.NewApp()
	app.Name = "netbox-secrets"
	app.Usage = "Fetch secrets from NetBox"
	app.Version = version.Version()
	app.ErrWriter = os.Stderr
	app.Commands = clicommand.NetBoxSecretsCommands
	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(c.App.ErrWriter, "%s: unknown command %q\nRun '%s --help' for usage.\n", c.App.Name, command, c.App.Name) //nolint:errcheck // nowhere to report it
		os.Exit(1)
	}

	os.Exit(clicommand.PrintMessageAndReturnExitCode(app.Run(os.Args)))
}
