// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

const defaultConfigPath = "config.toml"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   defaultConfigPath,
	}
}

// serveCommand runs the web server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the player web server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Override the listen host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override the listen port",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the player in the default browser",
			},
		},
		Action: r.Serve,
	}
}

// nowCommand prints the current playback state.
func nowCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "now",
		Usage: "Show what is currently playing",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON instead of text",
			},
		},
		Action: r.Now,
	}
}

// searchCommand searches the catalog for tracks.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search for tracks",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: text, csv, markdown or json",
				Value: "text",
			},
		},
		Action: r.SearchTracks,
	}
}

// devicesCommand lists playback devices.
func devicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List playback devices",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON instead of text",
			},
		},
		Action: r.DevicesList,
	}
}

// setupCommand initializes the database and runs the terminal wizard.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Provision the box",
		Commands: []*cli.Command{
			{
				Name:   "db",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "wizard",
				Usage:  "Run the setup wizard in the terminal",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupWizard,
			},
		},
	}
}

// configCommand inspects and creates configuration files.
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file operations",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration with secrets redacted",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.ConfigShow,
			},
			{
				Name:   "init",
				Usage:  "Create a configuration file from the template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ConfigInit,
			},
		},
	}
}

// sessionsCommand maintains the session store.
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Browser session operations",
		Commands: []*cli.Command{
			{
				Name:   "purge",
				Usage:  "Delete expired sessions",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SessionsPurge,
			},
		},
	}
}
