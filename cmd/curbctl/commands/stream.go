package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"curbenergy/curb"
	"curbenergy/realtime"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "print live power measurements until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "profile",
				Usage: "profile id (defaults to the first profile)",
			},
		},
		Action: streamAction,
	}
}

func streamAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	rtConfig, err := realtimeConfig(ctx, client, int64(cmd.Int("profile")))
	if err != nil {
		return err
	}

	stream := realtime.New(rtConfig)
	if err := stream.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to realtime API: %w", err)
	}

	slog.InfoContext(ctx, "streaming measurements", "topic", rtConfig.Topic)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		encoder := json.NewEncoder(os.Stdout)
		for {
			select {
			case msg, ok := <-stream.Messages():
				if !ok {
					return nil
				}
				if err := encoder.Encode(msg); err != nil {
					return fmt.Errorf("writing measurement: %w", err)
				}
			case <-gCtx.Done():
				return nil
			}
		}
	})

	runErr := g.Wait()
	if err := stream.Close(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// realtimeConfig resolves the real-time connection parameters for the
// requested profile, or the first profile when none is given.
func realtimeConfig(ctx context.Context, client *curb.Client, profileID int64) (curb.RealTimeConfig, error) {
	profiles, err := client.Profiles(ctx)
	if err != nil {
		return curb.RealTimeConfig{}, err
	}
	if len(profiles) == 0 {
		return curb.RealTimeConfig{}, errors.New("account has no profiles")
	}

	profile := &profiles[0]
	if profileID != 0 {
		profile = nil
		for i := range profiles {
			if profiles[i].ID == profileID {
				profile = &profiles[i]
				break
			}
		}
		if profile == nil {
			return curb.RealTimeConfig{}, fmt.Errorf("profile %d not found", profileID)
		}
	}

	for _, rt := range profile.RealTime {
		if rt.WebsocketURL != "" && rt.Topic != "" {
			return rt, nil
		}
	}
	return curb.RealTimeConfig{}, fmt.Errorf("profile %d exposes no realtime configuration", profile.ID)
}
