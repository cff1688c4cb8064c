package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"curbenergy/curb"
)

func profilesCommand() *cli.Command {
	return &cli.Command{
		Name:   "profiles",
		Usage:  "list the profiles of the authenticated user",
		Action: profilesAction,
	}
}

func profilesAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	profiles, err := client.Profiles(ctx)
	if err != nil {
		return err
	}
	return printJSON(profiles)
}

func devicesCommand() *cli.Command {
	return &cli.Command{
		Name:   "devices",
		Usage:  "list the devices of the authenticated user",
		Action: devicesAction,
	}
}

func devicesAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	devices, err := client.Devices(ctx)
	if err != nil {
		return err
	}
	return printJSON(devices)
}

func historicalCommand() *cli.Command {
	return &cli.Command{
		Name:  "historical",
		Usage: "fetch recorded power usage for a profile",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "profile",
				Usage:    "profile id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "granularity",
				Usage: "sample granularity (1T|1H|1D)",
				Value: curb.PerHour,
			},
			&cli.StringFlag{
				Name:  "unit",
				Usage: "measurement unit (w|$/hr)",
				Value: curb.Watt,
			},
			&cli.IntFlag{
				Name:  "since",
				Usage: "window start in epoch seconds (0 = beginning)",
			},
			&cli.IntFlag{
				Name:  "until",
				Usage: "window end in epoch seconds",
			},
		},
		Action: historicalAction,
	}
}

func historicalAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	query := curb.HistoricalQuery{
		Granularity: cmd.String("granularity"),
		Unit:        cmd.String("unit"),
		Since:       int64(cmd.Int("since")),
	}
	if cmd.IsSet("until") {
		until := int64(cmd.Int("until"))
		query.Until = &until
	}

	measurement, err := client.HistoricalData(ctx, int64(cmd.Int("profile")), query)
	if err != nil {
		return fmt.Errorf("fetching historical data: %w", err)
	}
	return printJSON(measurement)
}
