/*
Package cli provides helpers shared by the relay command's subcommands.

Output Formatting:

Commands that print records build a Table and let the user pick the
format:

	format, err := cli.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	table := &cli.Table{Headers: []string{"month", "unique_devices"}}
	table.AddRow(3, 42)
	return cli.NewFormatter(format).FormatTo(os.Stdout, table)

Signal Handling:

ShutdownContext is canceled on SIGINT or SIGTERM. ReloadSignals turns
SIGHUP into configuration reloads:

	ctx, stop := cli.ShutdownContext(context.Background())
	defer stop()
	for range cli.ReloadSignals(ctx) {
		// reload
	}

Errors:

ExitCode maps command errors to the process exit status, separating
configuration problems from runtime failures.
*/
package cli
