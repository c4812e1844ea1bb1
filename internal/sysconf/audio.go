package sysconf

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spotipi/spotipi/internal/shared"
)

// AudioOption is one selectable audio output: the built-in analog jack,
// HDMI, a named I2S DAC board, or the generic I2S entry whose overlay is
// supplied by the user.
type AudioOption struct {
	Value       string
	Name        string
	Description string
	// Overlay is the dtoverlay the option needs, empty for outputs that
	// use no I2S overlay (analog, hdmi) and for the generic i2s option,
	// which takes its overlay from configuration.
	Overlay string
}

// GenericI2S is the catalog key for a DAC not on the list; the overlay
// string comes from the i2s_overlay config value.
const GenericI2S = "i2s"

// AudioOptions is the catalog of supported outputs, in display order.
// At most one output is active: selecting a new one supersedes the prior
// boot-config entry.
var AudioOptions = []AudioOption{
	{Value: "analog", Name: "3.5mm Analog Jack", Description: "Built-in 3.5mm audio jack"},
	{Value: "hdmi", Name: "HDMI Audio", Description: "HDMI audio output"},
	{Value: "hifiberry-dac", Name: "HiFiBerry DAC+", Description: "HiFiBerry DAC+ basic model", Overlay: "hifiberry-dac"},
	{Value: "hifiberry-dacplus", Name: "HiFiBerry DAC+ Light", Description: "HiFiBerry DAC+ Light", Overlay: "hifiberry-dacplus"},
	{Value: "hifiberry-dacplusadc", Name: "HiFiBerry DAC+ Pro", Description: "HiFiBerry DAC+ Pro (with ADC)", Overlay: "hifiberry-dacplusadc"},
	{Value: "iqaudio-dacplus", Name: "IQaudio DAC+", Description: "IQaudio DAC+", Overlay: "iqaudio-dacplus"},
	{Value: "justboom-dac", Name: "JustBoom DAC", Description: "JustBoom DAC", Overlay: "justboom-dac"},
	{Value: "allo-boss-dac", Name: "Allo Boss DAC", Description: "Allo Boss DAC", Overlay: "allo-boss-dac-pcm512x-audio"},
	{Value: "allo-boss2-dac", Name: "Allo Boss2 DAC", Description: "Allo Boss2 DAC", Overlay: "allo-boss2-dac-pcm512x-audio"},
	{Value: GenericI2S, Name: "Generic I2S DAC", Description: "I2S DAC with a custom device-tree overlay"},
}

// LookupAudioOption returns the catalog entry for value.
func LookupAudioOption(value string) (AudioOption, error) {
	for _, opt := range AudioOptions {
		if opt.Value == value {
			return opt, nil
		}
	}
	return AudioOption{}, fmt.Errorf("%w: %s", shared.ErrUnknownAudio, value)
}

// i2sOverlayPatterns matches dtoverlay lines that select an I2S DAC. Any
// matching line is stripped before the new selection is written so the
// file never carries two active overlays.
var i2sOverlayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*dtoverlay\s*=\s*hifiberry-`),
	regexp.MustCompile(`(?i)^\s*dtoverlay\s*=\s*iqaudio-`),
	regexp.MustCompile(`(?i)^\s*dtoverlay\s*=\s*justboom-`),
	regexp.MustCompile(`(?i)^\s*dtoverlay\s*=\s*allo-`),
	regexp.MustCompile(`(?i)^\s*dtoverlay\s*=\s*i2s-mmap`),
}

var dtparamAudioPattern = regexp.MustCompile(`(?i)^\s*dtparam\s*=\s*audio\s*=`)

// Audio rewrites the boot firmware config for an output selection.
type Audio struct {
	// Path of the boot config file, e.g. /boot/firmware/config.txt.
	Path string
}

// Configure applies the selection. overlay is only consulted for the
// generic i2s option; catalog entries carry their own. previous is the
// custom overlay of the prior selection, if any, so a switch away from a
// generic i2s DAC removes its line too.
//
// The rewrite is idempotent: all known I2S overlay lines are removed and
// at most one new dtoverlay line appended, so applying the same selection
// twice leaves a single line, and switching to analog or hdmi leaves none.
// Returns a human-readable status message.
func (a Audio) Configure(option AudioOption, overlay, previous string) (string, error) {
	if option.Overlay != "" {
		overlay = option.Overlay
	} else if option.Value != GenericI2S {
		overlay = ""
	}

	if option.Value == GenericI2S && overlay == "" {
		return "", fmt.Errorf("%w: generic i2s requires an overlay name", shared.ErrInvalidInput)
	}

	data, err := os.ReadFile(a.Path)
	if os.IsNotExist(err) {
		// Not a Pi (development box): accept the selection without touching
		// the filesystem.
		return fmt.Sprintf("Audio output %q selected (boot config not found, skipping)", option.Name), nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: cannot read %s: %v", shared.ErrSystemWrite, a.Path, err)
	}

	if err := backupOnce(a.Path); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSystemWrite, err)
	}

	lines := stripI2SOverlays(strings.Split(string(data), "\n"), overlay, previous)

	if option.Value == "hdmi" {
		kept := lines[:0]
		for _, line := range lines {
			if !dtparamAudioPattern.MatchString(line) {
				kept = append(kept, line)
			}
		}
		lines = kept
	}

	if overlay != "" {
		lines = append(lines, "dtoverlay="+overlay)
	}

	content := strings.Join(lines, "\n")
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	if err := writeFileAtomic(a.Path, content, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSystemWrite, err)
	}

	return fmt.Sprintf("Audio output configured: %s. Reboot required for changes to take effect.", option.Name), nil
}

// stripI2SOverlays drops every known I2S overlay line plus any line
// selecting one of the named overlays (the new custom overlay and the
// previously configured one), along with trailing blank lines left at the
// end of the file.
func stripI2SOverlays(lines []string, overlays ...string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		matched := false
		for _, pattern := range i2sOverlayPatterns {
			if pattern.MatchString(line) {
				matched = true
				break
			}
		}
		if !matched {
			normalized := strings.ReplaceAll(strings.TrimSpace(line), " ", "")
			for _, overlay := range overlays {
				if overlay != "" && strings.EqualFold(normalized, "dtoverlay="+overlay) {
					matched = true
					break
				}
			}
		}
		if !matched {
			kept = append(kept, line)
		}
	}
	for len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
		kept = kept[:len(kept)-1]
	}
	return kept
}
