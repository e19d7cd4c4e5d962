// Package output renders GP registry and session state as terminal tables.
package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/denisoancea/GlobalPlatformPro/gp"
)

var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorISD     = text.Colors{text.FgMagenta}
	colorSD      = text.Colors{text.FgCyan}
	colorApp     = text.Colors{text.FgGreen}
	colorELF     = text.Colors{text.FgHiBlack}
)

func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	return t
}

func kindColor(k gp.Kind) text.Colors {
	switch k {
	case gp.KindISD:
		return colorISD
	case gp.KindSecurityDomain:
		return colorSD
	case gp.KindApplication:
		return colorApp
	default:
		return colorELF
	}
}

// PrintRegistry renders a full AIDRegistry as one table, one row per entry.
func PrintRegistry(reg *gp.AIDRegistry) {
	fmt.Println()
	t := newTable()
	t.SetTitle("GP CARD CONTENT")
	t.AppendHeader(table.Row{"AID", "Kind", "Life Cycle", "Privileges", "Modules"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorValue},
		{Number: 2, Colors: colorLabel},
	})

	for _, e := range reg.Entries {
		privNames := strings.Join(gp.DecodePrivileges(e.Privileges), ",")
		if privNames == "" {
			privNames = "-"
		}
		modules := "-"
		if len(e.ModuleAIDs) > 0 {
			names := make([]string, len(e.ModuleAIDs))
			for i, m := range e.ModuleAIDs {
				names[i] = m.String()
			}
			modules = strings.Join(names, ",")
		}
		row := table.Row{e.AID.String(), e.Kind.String(), fmt.Sprintf("%02X", e.LifeCycle), privNames, modules}
		t.AppendRow(row, table.RowConfig{AutoMerge: false})
	}
	t.Render()
}

// PrintSessionInfo renders the negotiated variant/security level after
// session setup.
func PrintSessionInfo(variant gp.Variant, level gp.SecurityLevel) {
	fmt.Println()
	t := newTable()
	t.SetTitle("SECURE CHANNEL")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 16},
		{Number: 2, Colors: colorValue},
	})
	t.AppendRow(table.Row{"Variant", variant.String()})
	t.AppendRow(table.Row{"Security level", fmt.Sprintf("%02X", byte(level))})
	t.Render()
}
