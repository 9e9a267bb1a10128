package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ishmatuaulia/thermoagent/internal/update"
	"github.com/ishmatuaulia/thermoagent/pkg/client"
)

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.URL, "api-url", "http://localhost:8080", "base URL of the agent API")
	cmd.Flags().StringVar(&flags.Timeout, "api-timeout", "10s", "request timeout")
}

func newAPIClient(flags *APIFlags) (*client.Client, context.Context, context.CancelFunc, error) {
	timeout, err := time.ParseDuration(flags.Timeout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid --api-timeout: %w", err)
	}
	c := client.New(client.Config{BaseURL: flags.URL, Timeout: timeout})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return c, ctx, cancel, nil
}

func createStatusCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show slot, update, and sensor status of a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			defer cancel()

			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Device:      %s\n", st.DeviceID)
			fmt.Printf("Firmware:    %s %s\n", st.FwTitle, st.FwVersion)
			fmt.Printf("Active slot: %s\n", st.ActiveSlot)
			if st.PendingVerify {
				fmt.Printf("Pending verification")
				if st.ConfirmDeadline != nil {
					fmt.Printf(" (deadline %s)", st.ConfirmDeadline.Format(time.RFC3339))
				}
				fmt.Println()
			}
			if st.Recovered {
				fmt.Println("WARNING: boot record was corrupt, running on factory fallback")
			}
			for _, s := range st.Slots {
				fmt.Printf("  %-8s role=%-9s state=%s\n", s.Slot, s.Role, s.State)
			}
			if st.UpdateBusy {
				fmt.Println("Update in progress")
			}
			if st.LastUpdate != nil {
				fmt.Printf("Last update: session=%s slot=%s status=%s\n",
					st.LastUpdate.SessionID, st.LastUpdate.Slot, st.LastUpdate.Status)
				if st.LastUpdate.ErrorMessage != "" {
					fmt.Printf("  error: %s\n", st.LastUpdate.ErrorMessage)
				}
			}
			if st.TemperatureC != nil {
				fmt.Printf("Temperature: %.1f°C", *st.TemperatureC)
				if st.LastSampleAt != nil {
					fmt.Printf(" (at %s)", st.LastSampleAt.Format(time.RFC3339))
				}
				fmt.Println()
			}
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// UpdateFlags holds flags for the update command.
type UpdateFlags struct {
	Location string
	Size     uint64
	Digest   string
	Version  string
}

func createUpdateCommand() *cobra.Command {
	flags := &APIFlags{}
	uf := &UpdateFlags{}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Trigger a firmware update on a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			defer cancel()

			key, err := c.TriggerUpdate(ctx, update.Trigger{
				ImageLocation:  uf.Location,
				ExpectedSize:   uf.Size,
				ExpectedDigest: uf.Digest,
				VersionTag:     uf.Version,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Update started: session %s\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&uf.Location, "location", "", "image location (https://, s3://, or file path)")
	cmd.Flags().Uint64Var(&uf.Size, "size", 0, "declared image size in bytes")
	cmd.Flags().StringVar(&uf.Digest, "digest", "", "expected sha256 of the image, hex")
	cmd.Flags().StringVar(&uf.Version, "version", "", "version tag the image header must carry")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("digest")
	addAPIFlags(cmd, flags)
	return cmd
}

func createAbortCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Abort the in-flight firmware update",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			defer cancel()

			if err := c.Abort(ctx); err != nil {
				return err
			}
			fmt.Println("Update aborted")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}
