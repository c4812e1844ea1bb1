package sysconf

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spotipi/spotipi/internal/shared"
)

// wpaHeader starts a fresh supplicant file when none exists or the
// existing one is missing its control-interface stanza.
const wpaHeader = `ctrl_interface=DIR=/var/run/wpa_supplicant GROUP=netdev
update_config=1
country=US
`

// Wifi appends network blocks to the wpa_supplicant configuration.
type Wifi struct {
	// Path of the supplicant file, e.g. /etc/wpa_supplicant/wpa_supplicant.conf.
	Path string
	// Interface used for wpa_cli reconfigure, default wlan0.
	Interface string
}

// Configure writes a network block for ssid/passphrase and asks the
// running wpa_supplicant to reload, best effort. Writes are appended;
// wpa_supplicant uses the first matching network block.
// Returns a human-readable status message.
func (w Wifi) Configure(ssid, passphrase string) (string, error) {
	ssid = strings.TrimSpace(ssid)
	if ssid == "" {
		return "", fmt.Errorf("%w: SSID cannot be empty", shared.ErrInvalidInput)
	}
	passphrase = strings.TrimSpace(passphrase)

	existing, err := os.ReadFile(w.Path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: cannot read %s: %v", shared.ErrSystemWrite, w.Path, err)
	}
	if os.IsNotExist(err) {
		// Not a Pi (development box): skip when the supplicant directory
		// itself is absent; a missing file inside an existing directory is a
		// first boot and gets a fresh file.
		if _, dirErr := os.Stat(filepath.Dir(w.Path)); os.IsNotExist(dirErr) {
			return fmt.Sprintf("WiFi configured: %s (supplicant file not found, skipping)", ssid), nil
		}
	}

	if err := backupOnce(w.Path); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSystemWrite, err)
	}

	block := fmt.Sprintf("\nnetwork={\n    ssid=%s\n    psk=\"%s\"\n}\n",
		escapeSSID(ssid), escapeValue(passphrase))

	var content string
	if body := string(existing); strings.Contains(body, "ctrl_interface") {
		content = strings.TrimRight(body, "\n") + "\n" + block
	} else {
		content = wpaHeader + block
	}

	if err := writeFileAtomic(w.Path, content, 0600); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSystemWrite, err)
	}

	w.reconfigure()

	return fmt.Sprintf("WiFi configured: %s. Network will be connected on next reboot or reconnection.", ssid), nil
}

// reconfigure asks wpa_supplicant to reload, best effort: the new block
// applies on reboot regardless.
func (w Wifi) reconfigure() {
	iface := w.Interface
	if iface == "" {
		iface = "wlan0"
	}
	cmd := exec.Command("wpa_cli", "-i", iface, "reconfigure")
	done := make(chan struct{})
	if err := cmd.Start(); err != nil {
		return
	}
	go func() {
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
	}
}

// escapeSSID quotes an SSID when it contains characters wpa_supplicant
// would otherwise misparse.
func escapeSSID(ssid string) string {
	if strings.ContainsAny(ssid, " \\\"#") {
		return `"` + escapeValue(ssid) + `"`
	}
	return ssid
}

func escapeValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// Network is one WiFi network found by a scan.
type Network struct {
	SSID      string `json:"ssid"`
	Signal    int    `json:"signal"`
	Encrypted bool   `json:"encrypted"`
}

var (
	essidPattern   = regexp.MustCompile(`ESSID:"?([^"]+)"?`)
	qualityPattern = regexp.MustCompile(`Quality=(\d+)/(\d+)`)
	levelPattern   = regexp.MustCompile(`Signal level=(-?\d+)`)
)

// ScanNetworks lists nearby WiFi networks, strongest first. It tries
// iwlist, then nmcli; an empty list with nil error means nothing was
// found or no scanner is available.
func ScanNetworks(iface string) ([]Network, error) {
	if iface == "" {
		iface = "wlan0"
	}

	if out, err := exec.Command("iwlist", iface, "scan").Output(); err == nil {
		if networks := parseIwlist(string(out)); len(networks) > 0 {
			return networks, nil
		}
	}

	if out, err := exec.Command("nmcli", "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list").Output(); err == nil {
		return parseNmcli(string(out)), nil
	}

	return nil, nil
}

func parseIwlist(out string) []Network {
	var networks []Network
	seen := make(map[string]bool)

	quality := 0
	encrypted := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.Contains(line, "Quality=") || strings.Contains(line, "Signal level="):
			if m := qualityPattern.FindStringSubmatch(line); m != nil {
				num, _ := strconv.Atoi(m[1])
				den, _ := strconv.Atoi(m[2])
				if den > 0 {
					quality = num * 100 / den
				}
			} else if m := levelPattern.FindStringSubmatch(line); m != nil {
				level, _ := strconv.Atoi(m[1])
				quality = max(0, min(100, (level+100)*2))
			}
		case strings.Contains(line, "Encryption key:"):
			_, value, _ := strings.Cut(line, ":")
			encrypted = strings.EqualFold(strings.TrimSpace(value), "on")
		case strings.Contains(line, "ESSID:"):
			if m := essidPattern.FindStringSubmatch(line); m != nil {
				ssid := m[1]
				if ssid != "" && ssid != `\x00` && !seen[ssid] {
					seen[ssid] = true
					networks = append(networks, Network{SSID: ssid, Signal: quality, Encrypted: encrypted})
				}
			}
		}
	}

	sort.SliceStable(networks, func(i, j int) bool { return networks[i].Signal > networks[j].Signal })
	return networks
}

func parseNmcli(out string) []Network {
	var networks []Network
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			continue
		}
		ssid := strings.TrimSpace(parts[0])
		if ssid == "" || ssid == "--" {
			continue
		}
		signal, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
		encrypted := len(parts) > 2 && strings.TrimSpace(parts[2]) != ""
		networks = append(networks, Network{SSID: ssid, Signal: signal, Encrypted: encrypted})
	}

	sort.SliceStable(networks, func(i, j int) bool { return networks[i].Signal > networks[j].Signal })
	return networks
}
