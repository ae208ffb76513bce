// Package tui is the interactive terminal menu for operators: list the
// roster, add or remove a pseudonym, and manage the side image.
package tui

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vrcwmt/worldperm/internal/facade"
	"github.com/vrcwmt/worldperm/internal/roster"
	"github.com/vrcwmt/worldperm/internal/style"
)

// Service is the part of the facade the menu drives.
type Service interface {
	Handle(ctx context.Context, req facade.Request) (facade.Result, error)
	List() roster.Listing
	UploadImage(ctx context.Context, r io.Reader, contentType string) error
	OpenImage() (io.ReadCloser, error)
}

type state int

const (
	stateMenu state = iota
	stateView
	stateAddName
	stateAddCategory
	stateRemove
	stateUploadPath
	stateBusy
)

// awaiting reports whether the menu is waiting on operator input that
// expires after the idle timeout.
func (s state) awaiting() bool {
	switch s {
	case stateAddName, stateAddCategory, stateRemove, stateUploadPath:
		return true
	}
	return false
}

type action int

const (
	actionList action = iota
	actionAdd
	actionRemove
	actionUpload
	actionShowImage
	actionQuit
)

type menuItem struct {
	action      action
	label       string
	description string
}

var menuItems = []menuItem{
	{actionList, "List pseudonyms", "show every category and its members"},
	{actionAdd, "Add pseudonym", "register a pseudonym in a category"},
	{actionRemove, "Remove pseudonym", "take a pseudonym out of a category"},
	{actionUpload, "Upload image", "replace the side image"},
	{actionShowImage, "Show image", "describe the current side image"},
	{actionQuit, "Quit", ""},
}

// choice is a selectable category, optionally bound to a member.
type choice struct {
	category  roster.Category
	pseudonym string
}

func (c choice) label() string {
	if c.pseudonym == "" {
		return style.Category(c.category)
	}
	label := style.Category(c.category) + " | " + c.pseudonym
	if c.category.Protected() {
		label += " " + style.LockPrefix
	}
	return label
}

// Messages produced by commands.
type (
	resultMsg struct {
		text string
		err  error
	}
	timeoutMsg struct{ seq int }
)

// Model is the bubbletea model of the menu.
type Model struct {
	svc     Service
	actor   string
	timeout time.Duration
	keys    keyMap

	state   state
	cursor  int
	choices []choice
	input   textinput.Model
	pending string
	listing string
	status  string
	failed  bool

	// seq invalidates idle timers armed for an earlier prompt.
	seq      int
	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithTimeout sets how long a prompt waits for input.
func WithTimeout(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// New returns the menu model. actor is recorded with every change.
func New(svc Service, actor string, opts ...Option) Model {
	ti := textinput.New()
	ti.CharLimit = 512
	ti.Width = 40

	m := Model{
		svc:     svc,
		actor:   actor,
		timeout: facade.DefaultInputTimeout,
		keys:    defaultKeyMap(),
		input:   ti,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Run starts the menu on the terminal and blocks until the operator quits
// or ctx is done.
func Run(ctx context.Context, svc Service, actor string, opts ...Option) error {
	p := tea.NewProgram(New(svc, actor, opts...), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case resultMsg:
		m.state = stateMenu
		m.cursor = 0
		m.setStatus(msg.text, msg.err)
		return m, nil

	case timeoutMsg:
		if msg.seq == m.seq && m.state.awaiting() {
			m.toMenu()
			m.setStatus("", fmt.Errorf("%w, try again", facade.ErrTimeout))
		}
		return m, nil
	}

	if m.inputActive() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.quitting = true
		return m, tea.Quit
	}
	if m.state == stateBusy {
		return m, nil
	}
	if key.Matches(msg, m.keys.Back) && m.state != stateMenu {
		m.toMenu()
		return m, nil
	}

	switch m.state {
	case stateMenu:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.move(-1, len(menuItems))
		case key.Matches(msg, m.keys.Down):
			m.move(1, len(menuItems))
		case key.Matches(msg, m.keys.Select):
			return m.selectMenu(menuItems[m.cursor].action)
		}

	case stateView:
		m.toMenu()

	case stateAddName, stateUploadPath:
		if msg.Type == tea.KeyEnter {
			return m.submitInput()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case stateAddCategory, stateRemove:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.move(-1, len(m.choices))
		case key.Matches(msg, m.keys.Down):
			m.move(1, len(m.choices))
		case key.Matches(msg, m.keys.Select):
			return m.submitChoice()
		}
	}
	return m, nil
}

func (m Model) selectMenu(a action) (tea.Model, tea.Cmd) {
	m.status = ""
	switch a {
	case actionList:
		m.state = stateView
		m.listing = facade.Render(m.svc.List())
		return m, nil

	case actionAdd:
		return m.prompt(stateAddName, "pseudonym")

	case actionRemove:
		m.choices = memberChoices(m.svc.List())
		if len(m.choices) == 0 {
			m.setStatus(facade.EmptyListing, nil)
			return m, nil
		}
		m.state = stateRemove
		m.cursor = 0
		return m, m.arm()

	case actionUpload:
		return m.prompt(stateUploadPath, "path/to/image.png")

	case actionShowImage:
		m.setStatus(describeImage(m.svc))
		return m, nil

	case actionQuit:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) prompt(s state, placeholder string) (tea.Model, tea.Cmd) {
	m.state = s
	m.input.Reset()
	m.input.Placeholder = placeholder
	focus := m.input.Focus()
	return m, tea.Batch(focus, textinput.Blink, m.arm())
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	m.input.Blur()

	switch m.state {
	case stateAddName:
		if _, err := roster.NormalizePseudonym(value); err != nil {
			m.toMenu()
			m.setStatus("", err)
			return m, nil
		}
		m.pending = value
		m.choices = make([]choice, 0, len(roster.Addable()))
		for _, c := range roster.Addable() {
			m.choices = append(m.choices, choice{category: c})
		}
		m.state = stateAddCategory
		m.cursor = 0
		m.seq++
		return m, m.arm()

	case stateUploadPath:
		if value == "" {
			m.toMenu()
			m.setStatus("", errors.New("no image path given"))
			return m, nil
		}
		m.state = stateBusy
		m.seq++
		return m, uploadCmd(m.svc, value)
	}
	return m, nil
}

func (m Model) submitChoice() (tea.Model, tea.Cmd) {
	if len(m.choices) == 0 {
		m.toMenu()
		return m, nil
	}
	c := m.choices[m.cursor]

	var req facade.Request
	if m.state == stateAddCategory {
		req = facade.NewRequest(roster.OpAdd, c.category, m.pending, m.actor)
	} else {
		req = facade.NewRequest(roster.OpRemove, c.category, c.pseudonym, m.actor)
	}
	m.state = stateBusy
	m.seq++
	return m, handleCmd(m.svc, req)
}

func handleCmd(svc Service, req facade.Request) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Handle(context.Background(), req)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: res.Message}
	}
}

func uploadCmd(svc Service, path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return resultMsg{err: fmt.Errorf("opening image: %w", err)}
		}
		defer f.Close()

		if err := svc.UploadImage(context.Background(), f, mime.TypeByExtension(filepath.Ext(path))); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: "Image updated."}
	}
}

func (m Model) arm() tea.Cmd {
	seq := m.seq
	return tea.Tick(m.timeout, func(time.Time) tea.Msg {
		return timeoutMsg{seq: seq}
	})
}

func (m *Model) toMenu() {
	m.state = stateMenu
	m.cursor = 0
	m.pending = ""
	m.input.Blur()
	m.seq++
}

func (m *Model) move(delta, n int) {
	if n == 0 {
		return
	}
	m.cursor = (m.cursor + delta + n) % n
}

func (m *Model) setStatus(text string, err error) {
	m.failed = err != nil
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = text
}

func (m Model) inputActive() bool {
	return m.state == stateAddName || m.state == stateUploadPath
}

// memberChoices lists every membership in canonical order. DIEUX members are
// shown so operators see them, but removing them is rejected.
func memberChoices(l roster.Listing) []choice {
	var out []choice
	for _, s := range l.NonEmpty() {
		for _, p := range s.Members {
			out = append(out, choice{category: s.Category, pseudonym: p})
		}
	}
	return out
}

func describeImage(svc Service) (string, error) {
	rc, err := svc.OpenImage()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	cfg, format, err := image.DecodeConfig(rc)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	return fmt.Sprintf("Current image: %dx%d %s", cfg.Width, cfg.Height, format), nil
}

var lower = cases.Lower(language.Und)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(style.Title.Render("World permissions"))
	b.WriteString("\n")

	switch m.state {
	case stateMenu:
		for i, item := range menuItems {
			b.WriteString(m.row(i, item.label, item.description))
		}

	case stateView:
		b.WriteString(m.listing)
		b.WriteString("\n")
		b.WriteString(style.Dim.Render("press any key to go back"))
		b.WriteString("\n")

	case stateAddName:
		b.WriteString("Pseudonym to add:\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")

	case stateAddCategory:
		fmt.Fprintf(&b, "Category for %s:\n", style.Bold.Render(m.pending))
		for i, c := range m.choices {
			b.WriteString(m.row(i, c.label(), lower.String(c.category.String())))
		}

	case stateRemove:
		b.WriteString("Membership to remove:\n")
		for i, c := range m.choices {
			b.WriteString(m.row(i, c.label(), ""))
		}

	case stateUploadPath:
		b.WriteString("Image file:\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")

	case stateBusy:
		b.WriteString(style.Dim.Render("saving..."))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.failed {
			b.WriteString(style.ErrorPrefix + " " + m.status)
		} else {
			b.WriteString(style.SuccessPrefix + " " + m.status)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(style.Dim.Render(m.helpLine()))
	return b.String()
}

func (m Model) row(i int, label, description string) string {
	line := "  " + label
	if i == m.cursor {
		line = style.Selected.Render("> ") + label
	}
	if description != "" {
		line += "  " + style.Dim.Render(description)
	}
	return line + "\n"
}

func (m Model) helpLine() string {
	parts := make([]string, 0, len(m.keys.help()))
	for _, b := range m.keys.help() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}
