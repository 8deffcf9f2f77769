package clicommand

import "github.com/urfave/cli"

var NetBoxSecretsCommands = []cli.Command{
	LookupCommand,
}
