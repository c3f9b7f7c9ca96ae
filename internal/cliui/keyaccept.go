// Package cliui implements the interactive terminal screens nexus-cli
// shows an operator: right now, the bank-key-hash acceptance screen that
// gates keyexchange's bank_keys_pending_accept → operational transition.
package cliui

import (
	"encoding/hex"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D4AA")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	hashStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D4AA")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

// KeyAcceptModel is the Bubble Tea model for the bank-key-hash acceptance
// screen: the operator reads the hashes of the authentication and
// encryption keys the bank returned during HPB and confirms they match
// the letter the bank sent out-of-band before nexus trusts them.
type KeyAcceptModel struct {
	hostID  string
	authHex string
	encHex  string

	accepted bool
	decided  bool
	quit     bool
}

// NewKeyAcceptModel builds the acceptance screen for one HostID's pending
// bank keys.
func NewKeyAcceptModel(hostID string, authHash, encHash [32]byte) *KeyAcceptModel {
	return &KeyAcceptModel{
		hostID:  hostID,
		authHex: formatHash(authHash[:]),
		encHex:  formatHash(encHash[:]),
	}
}

// formatHash renders a hash as space-separated, upper-case hex octets in
// rows of 16, the layout a bank's key letter uses so the two are easy to
// compare by eye.
func formatHash(sum []byte) string {
	hexStr := strings.ToUpper(hex.EncodeToString(sum))
	var b strings.Builder
	for i := 0; i < len(hexStr); i += 2 {
		if i > 0 {
			if i%32 == 0 {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(hexStr[i : i+2])
	}
	return b.String()
}

func (m *KeyAcceptModel) Init() tea.Cmd {
	return nil
}

func (m *KeyAcceptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "y", "Y":
		m.accepted = true
		m.decided = true
		return m, tea.Quit
	case "n", "N", "esc":
		m.accepted = false
		m.decided = true
		return m, tea.Quit
	case "ctrl+c":
		m.quit = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *KeyAcceptModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Bank key acceptance"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("HostID: %s\n\n", m.hostID))
	b.WriteString(warningStyle.Render("Compare these hashes against the key letter the bank sent you."))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("Authentication key (X002) hash:"))
	b.WriteString("\n")
	b.WriteString(hashStyle.Render(m.authHex))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("Encryption key (E002) hash:"))
	b.WriteString("\n")
	b.WriteString(hashStyle.Render(m.encHex))
	b.WriteString("\n\n")
	b.WriteString(infoStyle.Render("Do the hashes match the bank's letter? [y/N]: "))
	return b.String()
}

// Accepted reports the operator's decision once the program has exited.
func (m *KeyAcceptModel) Accepted() bool {
	return m.decided && m.accepted && !m.quit
}

// RunKeyAcceptance shows the acceptance screen and blocks until the
// operator answers. It returns true only if the operator explicitly
// confirmed the hashes match; any other exit (no, escape, ctrl-c) is
// treated as a rejection so a bank's keys are never trusted by default.
func RunKeyAcceptance(hostID string, authHash, encHash [32]byte) (bool, error) {
	model := NewKeyAcceptModel(hostID, authHash, encHash)
	p := tea.NewProgram(model)
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(*KeyAcceptModel)
	if !ok {
		return false, nil
	}
	return m.Accepted(), nil
}
