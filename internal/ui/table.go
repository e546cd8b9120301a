package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/huddle/internal/mesh"
	"github.com/BioHazard786/huddle/internal/registry"
)

// PeerTableView renders the established links of a session.
func PeerTableView(links []mesh.Link) string {
	if len(links) == 0 {
		return MutedStyle.Render(IconWaiting + " Waiting for others to join")
	}

	rows := make([][]string, 0, len(links))
	for _, l := range links {
		audio, video := false, false
		var received uint64
		if l.Stream != nil {
			audio, video = l.Stream.Kinds()
			received = l.Stream.BytesReceived()
		}
		rows = append(rows, []string{
			truncateString(l.DisplayName, 24),
			l.Direction.String(),
			mediaIcons(audio, video),
			formatBytes(received),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Participant", "Link", "Media", "Received").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

func mediaIcons(audio, video bool) string {
	a, v := IconMuted, IconNoCamera
	if audio {
		a = IconMic
	}
	if video {
		v = IconCamera
	}
	return a + " " + v
}

// RenderRooms prints the registry's active rooms.
func RenderRooms(w io.Writer, rooms []registry.RoomInfo) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No active rooms"))
		return
	}

	t := pretty.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(pretty.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle(IconRoom + " Active Rooms")
	t.AppendHeader(pretty.Row{"Room", "Participants", "Names"})

	total := 0
	for _, r := range rooms {
		names := ""
		for i, p := range r.Participants {
			if i > 0 {
				names += ", "
			}
			names += p.DisplayName
		}
		t.AppendRow(pretty.Row{r.ID, len(r.Participants), truncateString(names, 48)})
		total += len(r.Participants)
	}
	t.AppendFooter(pretty.Row{"Total", strconv.Itoa(total), ""})
	t.Render()
}
