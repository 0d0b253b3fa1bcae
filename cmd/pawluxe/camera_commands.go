package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pawluxe/internal/config"
	"pawluxe/internal/store"
)

func newCameraCommand(ctx *commandContext) *cobra.Command {
	cameraCmd := &cobra.Command{
		Use:   "camera",
		Short: "Register and list cameras",
	}
	cameraCmd.AddCommand(newCameraAddCommand(ctx))
	cameraCmd.AddCommand(newCameraListCommand(ctx))
	return cameraCmd
}

func newCameraAddCommand(ctx *commandContext) *cobra.Command {
	var zone string
	var streamURL string

	cmd := &cobra.Command{
		Use:   "add <camera-id>",
		Short: "Register a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				camera, err := st.AddCamera(cmd.Context(), store.Camera{
					ID:           args[0],
					LocationZone: zone,
					StreamURL:    streamURL,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered camera %s\n", camera.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&zone, "zone", "", "Location zone label")
	cmd.Flags().StringVar(&streamURL, "stream-url", "", "Stream locator used by the tracker")
	return cmd
}

func newCameraListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered cameras",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				cameras, err := st.ListCameras(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if cameras == nil {
						cameras = []*store.Camera{}
					}
					return writeJSON(cmd, cameras)
				}
				if len(cameras) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cameras registered")
					return nil
				}
				rows := make([][]string, 0, len(cameras))
				for _, c := range cameras {
					rows = append(rows, []string{c.ID, orDash(c.LocationZone), orDash(c.StreamURL), formatTimestamp(c.CreatedAt)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Camera", "Zone", "Stream", "Created"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	segmentCmd := &cobra.Command{
		Use:   "segment",
		Short: "Record and list media segments",
	}
	segmentCmd.AddCommand(newSegmentAddCommand(ctx))
	segmentCmd.AddCommand(newSegmentListCommand(ctx))
	return segmentCmd
}

func newSegmentAddCommand(ctx *commandContext) *cobra.Command {
	var cameraID, startRaw, endRaw, codec string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Record a media segment for a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(cameraID) == "" {
				return errors.New("--camera-id is required")
			}
			start, err := parseTimestampFlag("start", startRaw)
			if err != nil {
				return err
			}
			if start.IsZero() {
				return errors.New("--start is required")
			}
			end, err := parseTimestampFlag("end", endRaw)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				camera, err := st.GetCamera(cmd.Context(), cameraID)
				if err != nil {
					return err
				}
				if camera == nil {
					return fmt.Errorf("camera %s not found", cameraID)
				}
				segment, err := st.AddSegment(cmd.Context(), store.MediaSegment{
					CameraID: cameraID,
					StartTS:  start,
					EndTS:    end,
					Path:     args[0],
					Codec:    codec,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded segment %s\n", segment.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cameraID, "camera-id", "", "Camera that recorded the segment")
	cmd.Flags().StringVar(&startRaw, "start", "", "Segment start (RFC 3339)")
	cmd.Flags().StringVar(&endRaw, "end", "", "Segment end (RFC 3339); omit for a segment still recording")
	cmd.Flags().StringVar(&codec, "codec", "", "Codec label")
	return cmd
}

func newSegmentListCommand(ctx *commandContext) *cobra.Command {
	var cameraID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List media segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				segments, err := st.ListSegments(cmd.Context(), strings.TrimSpace(cameraID))
				if err != nil {
					return err
				}
				if asJSON {
					if segments == nil {
						segments = []*store.MediaSegment{}
					}
					return writeJSON(cmd, segments)
				}
				if len(segments) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No segments recorded")
					return nil
				}
				rows := make([][]string, 0, len(segments))
				for _, s := range segments {
					rows = append(rows, []string{s.ID, s.CameraID, formatTimestamp(s.StartTS), formatTimestamp(s.EndTS), s.Path})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Segment", "Camera", "Start", "End", "Path"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cameraID, "camera-id", "", "Only list segments of this camera")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func parseTimestampFlag(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected RFC 3339 timestamp: %w", name, err)
	}
	return ts.UTC(), nil
}
