package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/goKeySwap/config"
	"github.com/goKeySwap/tap"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func renderMappings(cfg config.Config) string {
	state := "enabled"
	if !cfg.Enabled {
		state = "disabled"
	}
	title := titleStyle.Render("goKeySwap - Keyboard Remapper") + " " + mutedStyle.Render("("+state+" at startup)")

	named := cfg.Named()
	if len(named) == 0 {
		return title + "\n" + mutedStyle.Render("  No mappings configured")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "FROM", "TO").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, m := range named {
		t.Row(m.Name, strconv.Itoa(m.From), strconv.Itoa(m.To))
	}
	return title + "\n" + t.String()
}

func printDevices(w io.Writer, cfg config.Config) error {
	keyboards, err := tap.ListKeyboards(cfg.HookConfig())
	if err != nil {
		if errors.Is(err, tap.ErrPermissionDenied) {
			return fmt.Errorf("%w (%s)", err, permissionHint())
		}
		return err
	}
	for _, kb := range keyboards {
		fmt.Fprintf(w, "%s\t%s\n", kb.Path, kb.Name)
	}
	return nil
}
