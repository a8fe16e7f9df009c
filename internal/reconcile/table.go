package reconcile

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxListed caps the per-key rows rendered for each state.
const maxListed = 50

// Table renders the report as a summary table followed by the affected keys.
func (r *Report) Table() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Relay", "Expected", "Present", "Missing", "Outdated", "Republished", "Still missing"})
	tw.AppendRow(table.Row{
		r.Relay,
		strconv.Itoa(r.Expected),
		strconv.Itoa(r.Present),
		strconv.Itoa(len(r.Missing)),
		strconv.Itoa(len(r.Outdated)),
		strconv.Itoa(len(r.Republished)),
		strconv.Itoa(len(r.StillMissing)),
	})
	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}}
	for i := 2; i <= 7; i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	out := tw.Render()

	if len(r.Missing) == 0 && len(r.Outdated) == 0 {
		return out
	}

	dw := table.NewWriter()
	dw.SetStyle(table.StyleRounded)
	dw.AppendHeader(table.Row{"State", "Kind", "d-tag", "Detail"})
	still := make(map[string]bool, len(r.StillMissing))
	for _, k := range r.StillMissing {
		still[k.Address()] = true
	}
	for i, k := range r.Missing {
		if i == maxListed {
			dw.AppendRow(table.Row{"missing", "", fmt.Sprintf("… %d more", len(r.Missing)-maxListed), ""})
			break
		}
		detail := ""
		switch {
		case still[k.Address()]:
			detail = "still missing"
		case r.Repair:
			detail = "republished"
		}
		dw.AppendRow(table.Row{"missing", strconv.Itoa(k.Kind), k.DTag, detail})
	}
	for i, o := range r.Outdated {
		if i == maxListed {
			dw.AppendRow(table.Row{"outdated", "", fmt.Sprintf("… %d more", len(r.Outdated)-maxListed), ""})
			break
		}
		dw.AppendRow(table.Row{"outdated", strconv.Itoa(o.Key.Kind), o.Key.DTag, "relay has " + shortID(o.RelayID)})
	}
	return out + "\n" + dw.Render()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
