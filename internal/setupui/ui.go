// package setupui is the terminal counterpart of the setup wizard, for
// provisioning a box over SSH before the web server is reachable.
package setupui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spotipi/spotipi/internal/shared"
	"github.com/spotipi/spotipi/internal/sysconf"
)

// ViewState represents the current step in the wizard.
type ViewState int

const (
	WiFiView ViewState = iota
	SpotifyView
	AudioView
	OverlayView
	DoneView
)

// Model represents the wizard state.
type Model struct {
	config     *shared.Config
	configPath string

	view     ViewState
	width    int
	height   int
	inputs   []textinput.Model
	focused  int
	audio    list.Model
	networks []sysconf.Network
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// keyMap defines the key bindings for the wizard.
type keyMap struct {
	next  key.Binding
	prev  key.Binding
	enter key.Binding
	skip  key.Binding
	quit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		prev: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "previous field"),
		),
		enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		skip: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "skip step"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.enter, k.skip, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.next, k.prev},
		{k.enter, k.skip, k.quit},
	}
}

// audioItem wraps [sysconf.AudioOption] to implement list.Item.
type audioItem struct {
	option sysconf.AudioOption
}

func (i audioItem) FilterValue() string { return i.option.Name }
func (i audioItem) Title() string       { return i.option.Name }
func (i audioItem) Description() string { return i.option.Description }

type networksScannedMsg struct {
	networks []sysconf.Network
}

// NewModel creates a wizard model resuming from whatever the config
// already answers.
func NewModel(config *shared.Config, configPath string) *Model {
	m := &Model{
		config:     config,
		configPath: configPath,
		help:       help.New(),
		keys:       newKeyMap(),
	}

	switch config.FirstIncompleteStep() {
	case shared.StepSpotify:
		m.enterSpotify()
	case shared.StepAudio:
		m.enterAudio()
	case "":
		m.view = DoneView
	default:
		m.enterWiFi()
	}

	return m
}

// Init starts a background network scan for the WiFi step.
func (m *Model) Init() tea.Cmd {
	if m.view != WiFiView {
		return nil
	}
	return func() tea.Msg {
		networks, _ := sysconf.ScanNetworks("")
		return networksScannedMsg{networks: networks}
	}
}

func (m *Model) enterWiFi() {
	m.view = WiFiView
	ssid := textinput.New()
	ssid.Placeholder = "Network name"
	ssid.SetValue(m.config.WiFi.SSID)
	ssid.Focus()

	pass := textinput.New()
	pass.Placeholder = "Passphrase"
	pass.EchoMode = textinput.EchoPassword

	m.inputs = []textinput.Model{ssid, pass}
	m.focused = 0
}

func (m *Model) enterSpotify() {
	m.view = SpotifyView
	clientID := textinput.New()
	clientID.Placeholder = "Client ID"
	clientID.SetValue(m.config.Credentials.Spotify.ClientID)
	clientID.Focus()

	secret := textinput.New()
	secret.Placeholder = "Client secret"
	secret.EchoMode = textinput.EchoPassword

	redirect := textinput.New()
	redirect.Placeholder = "Redirect URI"
	uri := m.config.Credentials.Spotify.RedirectURI
	if uri == "" {
		uri = fmt.Sprintf("http://%s/callback", m.config.Server.Addr())
	}
	redirect.SetValue(uri)

	m.inputs = []textinput.Model{clientID, secret, redirect}
	m.focused = 0
}

func (m *Model) enterAudio() {
	m.view = AudioView
	items := make([]list.Item, len(sysconf.AudioOptions))
	selected := 0
	for i, option := range sysconf.AudioOptions {
		items[i] = audioItem{option: option}
		if option.Value == m.config.Audio.Output {
			selected = i
		}
	}
	m.audio = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.audio.Title = "Audio Output"
	m.audio.SetFilteringEnabled(false)
	m.audio.Select(selected)
	if m.width > 0 {
		m.audio.SetSize(m.width-4, m.height-8)
	}
}

func (m *Model) enterOverlay() {
	m.view = OverlayView
	overlay := textinput.New()
	overlay.Placeholder = "Overlay name, e.g. hifiberry-dac"
	overlay.SetValue(m.config.Audio.I2SOverlay)
	overlay.Focus()
	m.inputs = []textinput.Model{overlay}
	m.focused = 0
}

// Update handles incoming messages and advances the wizard.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == AudioView {
			m.audio.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case networksScannedMsg:
		m.networks = msg.networks
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		switch m.view {
		case WiFiView:
			return m.handleWiFiKeys(msg)
		case SpotifyView:
			return m.handleSpotifyKeys(msg)
		case AudioView:
			return m.handleAudioKeys(msg)
		case OverlayView:
			return m.handleOverlayKeys(msg)
		case DoneView:
			return m, tea.Quit
		}
	}

	return m.updateInputs(msg)
}

func (m *Model) handleWiFiKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.skip):
		m.err = nil
		if err := m.saveWiFi("", "", true); err != nil {
			m.err = err
			return m, nil
		}
		m.enterSpotify()
		return m, nil

	case key.Matches(msg, m.keys.enter):
		ssid := strings.TrimSpace(m.inputs[0].Value())
		if ssid == "" {
			m.err = fmt.Errorf("%w: network name is required", shared.ErrInvalidInput)
			return m, nil
		}
		m.err = nil
		if err := m.saveWiFi(ssid, m.inputs[1].Value(), false); err != nil {
			m.err = err
			return m, nil
		}
		m.enterSpotify()
		return m, nil
	}

	return m.cycleOrType(msg)
}

func (m *Model) handleSpotifyKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.enter) {
		clientID := strings.TrimSpace(m.inputs[0].Value())
		secret := strings.TrimSpace(m.inputs[1].Value())
		redirect := strings.TrimSpace(m.inputs[2].Value())
		if clientID == "" || secret == "" {
			m.err = fmt.Errorf("%w: client ID and secret are required", shared.ErrMissingCredentials)
			return m, nil
		}
		m.err = nil
		if err := m.saveSpotify(clientID, secret, redirect); err != nil {
			m.err = err
			return m, nil
		}
		m.enterAudio()
		return m, nil
	}

	return m.cycleOrType(msg)
}

func (m *Model) handleAudioKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.enter) {
		selected := m.audio.SelectedItem()
		if item, ok := selected.(audioItem); ok {
			if item.option.Value == sysconf.GenericI2S {
				m.enterOverlay()
				return m, nil
			}
			m.err = nil
			if err := m.saveAudio(item.option, ""); err != nil {
				m.err = err
				return m, nil
			}
			m.view = DoneView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.audio, cmd = m.audio.Update(msg)
	return m, cmd
}

func (m *Model) handleOverlayKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.enter) {
		overlay := strings.TrimSpace(m.inputs[0].Value())
		if overlay == "" {
			m.err = fmt.Errorf("%w: overlay name is required", shared.ErrInvalidInput)
			return m, nil
		}
		option, err := sysconf.LookupAudioOption(sysconf.GenericI2S)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		if err := m.saveAudio(option, overlay); err != nil {
			m.err = err
			return m, nil
		}
		m.view = DoneView
		return m, nil
	}

	return m.updateInputs(msg)
}

func (m *Model) cycleOrType(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.next):
		m.focusInput(m.focused + 1)
		return m, nil
	case key.Matches(msg, m.keys.prev):
		m.focusInput(m.focused - 1)
		return m, nil
	}
	return m.updateInputs(msg)
}

func (m *Model) focusInput(index int) {
	count := len(m.inputs)
	m.focused = ((index % count) + count) % count
	for i := range m.inputs {
		if i == m.focused {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) saveWiFi(ssid, passphrase string, skip bool) error {
	if !skip {
		wifi := sysconf.Wifi{Path: m.config.System.WPASupplicant}
		msg, err := wifi.Configure(ssid, passphrase)
		if err != nil {
			return err
		}
		m.status = msg
	}

	m.config.WiFi.Done = true
	m.config.WiFi.SSID = ssid
	return m.persist()
}

func (m *Model) saveSpotify(clientID, secret, redirect string) error {
	if redirect == "" {
		redirect = fmt.Sprintf("http://%s/callback", m.config.Server.Addr())
	}
	if !strings.HasPrefix(redirect, "http://") && !strings.HasPrefix(redirect, "https://") {
		return fmt.Errorf("%w: redirect URI must be an http or https URL", shared.ErrInvalidInput)
	}
	m.config.Credentials.Spotify.ClientID = clientID
	m.config.Credentials.Spotify.ClientSecret = secret
	m.config.Credentials.Spotify.RedirectURI = redirect
	return m.persist()
}

func (m *Model) saveAudio(option sysconf.AudioOption, overlay string) error {
	audio := sysconf.Audio{Path: m.config.System.BootConfig}
	msg, err := audio.Configure(option, overlay, m.config.Audio.I2SOverlay)
	if err != nil {
		return err
	}
	m.status = msg

	m.config.Audio.Output = option.Value
	m.config.Audio.I2SOverlay = overlay
	if m.config.App.SecretKey == "" {
		m.config.App.SecretKey = shared.GenerateSecretKey()
	}
	return m.persist()
}

func (m *Model) persist() error {
	if m.configPath == "" {
		return nil
	}
	return shared.SaveConfig(m.configPath, m.config)
}

// View renders the current step.
func (m *Model) View() string {
	var b strings.Builder

	switch m.view {
	case WiFiView:
		b.WriteString(styles.title.Render("Step 1 of 3: WiFi"))
		b.WriteString("\n")
		if len(m.networks) > 0 {
			b.WriteString(styles.help.Render(fmt.Sprintf("Nearby: %s", networkNames(m.networks, 5))))
			b.WriteString("\n\n")
		}
		for i := range m.inputs {
			b.WriteString(m.inputs[i].View())
			b.WriteString("\n")
		}
	case SpotifyView:
		b.WriteString(styles.title.Render("Step 2 of 3: Spotify credentials"))
		b.WriteString("\n")
		for i := range m.inputs {
			b.WriteString(m.inputs[i].View())
			b.WriteString("\n")
		}
	case AudioView:
		return fmt.Sprintf("%s\n\n%s", m.audio.View(), m.help.ShortHelpView(m.keys.ShortHelp()))
	case OverlayView:
		b.WriteString(styles.title.Render("Step 3 of 3: Device-tree overlay"))
		b.WriteString("\n")
		b.WriteString(m.inputs[0].View())
		b.WriteString("\n")
	case DoneView:
		b.WriteString(styles.ok.Render("Setup complete"))
		b.WriteString("\n\n")
		if m.status != "" {
			b.WriteString(m.status)
			b.WriteString("\n")
		}
		b.WriteString("Reboot if the audio overlay changed, then open the web player.\n")
		b.WriteString(styles.help.Render("Press any key to exit"))
		return b.String()
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(styles.err.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func networkNames(networks []sysconf.Network, limit int) string {
	names := make([]string, 0, limit)
	for _, network := range networks {
		names = append(names, network.SSID)
		if len(names) == limit {
			break
		}
	}
	return strings.Join(names, ", ")
}
