package formatter

import (
	"strings"
	"testing"

	"github.com/spotipi/spotipi/internal/services"
)

func sampleTracks() []services.Track {
	return []services.Track{
		{
			ID:         "track1",
			Name:       "Song One",
			Artists:    []string{"Artist One"},
			Album:      "Album One",
			DurationMS: 180000,
		},
		{
			ID:         "track2",
			Name:       "Song Two",
			Artists:    []string{"Artist Two", "Artist Three"},
			Album:      "Album Two",
			DurationMS: 241000,
		},
	}
}

func TestFormatters(t *testing.T) {
	t.Run("TracksToCSV", func(t *testing.T) {
		data, err := TracksToCSV(sampleTracks())
		if err != nil {
			t.Fatalf("TracksToCSV failed: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "ID,Name,Artists,Album,Duration") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "track1") {
			t.Error("CSV missing track1 ID")
		}
		if !strings.Contains(output, "Song One") {
			t.Error("CSV missing track1 name")
		}
		if !strings.Contains(output, "Artist Two; Artist Three") {
			t.Error("CSV missing joined artists")
		}
		if !strings.Contains(output, "180000") {
			t.Error("CSV missing duration in milliseconds")
		}

		lines := strings.Split(strings.TrimSpace(output), "\n")
		if len(lines) != 3 {
			t.Errorf("expected header plus 2 records, got %d lines", len(lines))
		}
	})

	t.Run("TracksToCSV with no tracks", func(t *testing.T) {
		data, err := TracksToCSV(nil)
		if err != nil {
			t.Fatalf("TracksToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 1 {
			t.Errorf("expected header only, got %d lines", len(lines))
		}
	})

	t.Run("TracksToText", func(t *testing.T) {
		output := string(TracksToText(sampleTracks()))

		if !strings.Contains(output, "1. Artist One - Song One (Album One) [3:00]") {
			t.Errorf("unexpected first line, got: %s", output)
		}
		if !strings.Contains(output, "2. Artist Two, Artist Three - Song Two (Album Two) [4:01]") {
			t.Errorf("unexpected second line, got: %s", output)
		}
	})

	t.Run("TracksToText with no tracks", func(t *testing.T) {
		output := string(TracksToText(nil))

		if output != "no tracks\n" {
			t.Errorf("expected placeholder, got: %q", output)
		}
	})

	t.Run("TracksToMarkdown", func(t *testing.T) {
		output := string(TracksToMarkdown("Search results", sampleTracks()))

		if !strings.HasPrefix(output, "# Search results\n") {
			t.Errorf("expected heading, got: %s", output)
		}
		if !strings.Contains(output, "**Tracks**: 2") {
			t.Error("expected track count")
		}
		if !strings.Contains(output, "1. Artist One - Song One") {
			t.Error("expected numbered track entry")
		}
	})

	t.Run("PlaybackToText", func(t *testing.T) {
		t.Run("playing with device", func(t *testing.T) {
			state := &services.PlaybackState{
				IsPlaying:  true,
				ProgressMS: 65000,
				Item: &services.Track{
					Name:       "Song One",
					Artists:    []string{"Artist One"},
					Album:      "Album One",
					DurationMS: 180000,
				},
				Device: &services.Device{
					Name:   "Living Room",
					Type:   "Speaker",
					Volume: 60,
				},
			}

			output := string(PlaybackToText(state))

			if !strings.Contains(output, "playing: Artist One - Song One") {
				t.Errorf("unexpected status line, got: %s", output)
			}
			if !strings.Contains(output, "album:   Album One") {
				t.Error("expected album line")
			}
			if !strings.Contains(output, "elapsed: 1:05 / 3:00") {
				t.Errorf("unexpected elapsed line, got: %s", output)
			}
			if !strings.Contains(output, "device:  Living Room (Speaker, volume 60%)") {
				t.Errorf("unexpected device line, got: %s", output)
			}
		})

		t.Run("paused", func(t *testing.T) {
			state := &services.PlaybackState{
				Item: &services.Track{Name: "Song", Artists: []string{"Artist"}},
			}

			output := string(PlaybackToText(state))

			if !strings.HasPrefix(output, "paused: Artist - Song") {
				t.Errorf("expected paused status, got: %s", output)
			}
		})

		t.Run("nothing playing", func(t *testing.T) {
			if output := string(PlaybackToText(nil)); output != "nothing playing\n" {
				t.Errorf("expected placeholder for nil state, got: %q", output)
			}

			empty := &services.PlaybackState{}
			if output := string(PlaybackToText(empty)); output != "nothing playing\n" {
				t.Errorf("expected placeholder for empty state, got: %q", output)
			}
		})
	})

	t.Run("DevicesToText", func(t *testing.T) {
		devices := []services.Device{
			{ID: "d1", Name: "Living Room", Type: "Speaker", Volume: 60, IsActive: true},
			{ID: "d2", Name: "Kitchen", Type: "Speaker", Volume: 30},
		}

		output := string(DevicesToText(devices, ""))

		if !strings.Contains(output, "* Living Room (Speaker, volume 60%)") {
			t.Errorf("expected active marker, got: %s", output)
		}
		if !strings.Contains(output, "  Kitchen (Speaker, volume 30%)") {
			t.Errorf("expected unmarked device, got: %s", output)
		}

		output = string(DevicesToText(devices, "d2"))
		if !strings.Contains(output, "* Kitchen") {
			t.Errorf("expected selected marker, got: %s", output)
		}

		if output := string(DevicesToText(nil, "")); output != "no devices\n" {
			t.Errorf("expected placeholder, got: %q", output)
		}
	})
}
