// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/grokchat/internal/render"
	"github.com/jeranaias/grokchat/internal/session"
)

// =============================================================================
// THREAD PICKER
// =============================================================================

// threadItem is one row of the picker.
type threadItem struct {
	thread session.Thread
	active bool
}

func (i threadItem) Title() string {
	if i.active {
		return "* " + i.thread.Title
	}
	return i.thread.Title
}

func (i threadItem) Description() string {
	return fmt.Sprintf("%d messages, updated %s", len(i.thread.Messages), render.FormatTime(i.thread.UpdatedAt))
}

func (i threadItem) FilterValue() string { return i.thread.Title }

// pickerModel is a filterable list of threads. Enter selects, q or Esc
// cancels.
type pickerModel struct {
	list   list.Model
	choice string
}

func newPickerModel(threads []session.Thread, activeID string) pickerModel {
	items := make([]list.Item, 0, len(threads))
	selected := 0
	for i, t := range threads {
		items = append(items, threadItem{thread: t, active: t.ID == activeID})
		if t.ID == activeID {
			selected = i
		}
	}

	l := list.New(items, list.NewDefaultDelegate(), render.DefaultTerminalWidth, 20)
	l.Title = "Threads"
	l.Styles.Title = render.TitleStyle
	l.Select(selected)
	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(threadItem); ok {
				m.choice = item.thread.ID
			}
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return m.list.View()
}

// pickThread shows the picker and returns the chosen thread id, or "" when
// the user cancels.
func pickThread(threads []session.Thread, activeID string) (string, error) {
	p := tea.NewProgram(newPickerModel(threads, activeID), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	return final.(pickerModel).choice, nil
}
