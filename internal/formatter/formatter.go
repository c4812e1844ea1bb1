// package formatter renders playback state and track listings for the
// command line (plain text, CSV, Markdown).
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/spotipi/spotipi/internal/services"
	"github.com/spotipi/spotipi/internal/shared"
)

// TracksToCSV renders tracks as CSV with columns: ID, Name, Artists, Album, Duration
func TracksToCSV(tracks []services.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artists", "Album", "Duration"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			track.ID,
			track.Name,
			strings.Join(track.Artists, "; "),
			track.Album,
			strconv.Itoa(track.DurationMS),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TracksToText renders tracks as a numbered plain-text list.
func TracksToText(tracks []services.Track) []byte {
	var buf bytes.Buffer

	if len(tracks) == 0 {
		buf.WriteString("no tracks\n")
		return buf.Bytes()
	}

	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, trackLine(track)))
	}

	return buf.Bytes()
}

// TracksToMarkdown renders tracks as a Markdown list under a heading.
func TracksToMarkdown(title string, tracks []services.Track) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(tracks)))

	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, trackLine(track)))
	}

	return buf.Bytes()
}

func trackLine(track services.Track) string {
	albumPart := ""
	if track.Album != "" {
		albumPart = fmt.Sprintf(" (%s)", track.Album)
	}
	return fmt.Sprintf("%s - %s%s [%s]",
		strings.Join(track.Artists, ", "),
		track.Name,
		albumPart,
		shared.FormatDuration(track.DurationMS))
}

// PlaybackToText renders a playback snapshot as a short status block.
// A nil state means nothing is playing, which is a normal answer.
func PlaybackToText(state *services.PlaybackState) []byte {
	var buf bytes.Buffer

	if state == nil || state.Item == nil {
		buf.WriteString("nothing playing\n")
		return buf.Bytes()
	}

	verb := "paused"
	if state.IsPlaying {
		verb = "playing"
	}

	buf.WriteString(fmt.Sprintf("%s: %s - %s\n",
		verb,
		strings.Join(state.Item.Artists, ", "),
		state.Item.Name))

	if state.Item.Album != "" {
		buf.WriteString(fmt.Sprintf("album:   %s\n", state.Item.Album))
	}
	buf.WriteString(fmt.Sprintf("elapsed: %s / %s\n",
		shared.FormatDuration(state.ProgressMS),
		shared.FormatDuration(state.Item.DurationMS)))

	if state.Device != nil {
		buf.WriteString(fmt.Sprintf("device:  %s (%s, volume %d%%)\n",
			state.Device.Name, state.Device.Type, state.Device.Volume))
	}

	return buf.Bytes()
}

// DevicesToText renders the device list, marking the active or selected one.
func DevicesToText(devices []services.Device, selected string) []byte {
	var buf bytes.Buffer

	if len(devices) == 0 {
		buf.WriteString("no devices\n")
		return buf.Bytes()
	}

	for _, device := range devices {
		marker := " "
		if device.IsActive || (selected != "" && device.ID == selected) {
			marker = "*"
		}
		buf.WriteString(fmt.Sprintf("%s %s (%s, volume %d%%)\n",
			marker, device.Name, device.Type, device.Volume))
	}

	return buf.Bytes()
}
