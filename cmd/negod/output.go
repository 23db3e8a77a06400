package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/nego/internal/lobby"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/presence"
	"github.com/alfredjeanlab/nego/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func formatMoney(v float64) string {
	if v == model.NotApplicable {
		return "-"
	}
	return fmt.Sprintf("$%.2f", v)
}

func printSessionTable(w io.Writer, rec *model.SessionRecord) {
	fmt.Fprintf(w, "Tag:         %s\n", ui.RenderAccent(rec.Tag))
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderCompleted(rec.Completed))
	fmt.Fprintf(w, "Turns:       %d\n", rec.TurnCount)
	if len(rec.Departed) > 0 {
		fmt.Fprintf(w, "Departed:    %s\n", ui.RenderWarn(strings.Join(rec.Departed, ", ")))
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created At:  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tWORKER\tVERDICT\tMEAN WORDS\tWRONG\tBASE PAY\tBONUS")
	for _, p := range rec.Participants {
		wrong := "-"
		if p.DummyWrong != model.NotApplicable {
			wrong = fmt.Sprintf("%d", p.DummyWrong)
		}
		words := "-"
		if p.MeanWords != model.NotApplicable {
			words = fmt.Sprintf("%.1f", p.MeanWords)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.WorkerID, ui.RenderVerdict(p.WorkQuality), words, wrong,
			formatMoney(p.FinalBasePay), formatMoney(p.PerformanceBonus))
	}
	tw.Flush()

	if len(rec.Actions) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Transcript:")
	width := ui.TerminalWidth(100)
	for _, a := range rec.Actions {
		fmt.Fprintln(w, ui.Truncate("  "+formatAction(a), width))
	}
}

// formatAction renders one transcript line.
func formatAction(a *model.Action) string {
	who := ui.RenderMuted(a.SenderID)
	switch a.Kind {
	case model.ActionMessage:
		return fmt.Sprintf("%s: %s", who, a.Text)
	case model.ActionSubmitDeal:
		return fmt.Sprintf("%s %s %s", who, ui.RenderAccent(string(a.Kind)), formatDeal(a.Deal))
	default:
		return fmt.Sprintf("%s %s", who, ui.RenderAccent(string(a.Kind)))
	}
}

// formatDeal renders a deal as "you Food=2 Water=1 / they Food=1 Water=2" in
// a stable issue order.
func formatDeal(d *model.Deal) string {
	if d == nil {
		return ""
	}
	side := func(m map[string]int) string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, m[k])
		}
		return strings.Join(parts, " ")
	}
	return "you " + side(d.YouGet) + " / they " + side(d.TheyGet)
}

func printSessionListTable(w io.Writer, recs []*model.SessionRecord, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tSTATUS\tTURNS\tWORKERS\tCREATED")
	for _, r := range recs {
		workers := make([]string, 0, len(r.Participants))
		for _, p := range r.Participants {
			workers = append(workers, p.WorkerID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.Tag, ui.RenderCompleted(r.Completed), r.TurnCount,
			strings.Join(workers, ","), r.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %d sessions\n", len(recs), total)
}

func printLiveTable(w io.Writer, live []lobby.LiveSession, waiting int, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tPARTICIPANTS\tRUNNING")
	for _, s := range live {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Tag, strings.Join(s.Participants, ","),
			now.Sub(s.StartedAt).Truncate(time.Second))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d live, %d waiting\n", len(live), waiting)
}

func printRosterTable(w io.Writer, entries []presence.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tWORKER\tSESSION\tLAST BEAT\tIDLE\tSTATE")
	for _, e := range entries {
		state := "alive"
		if e.Reaped {
			state = ui.RenderWarn("dead")
		}
		session := e.SessionTag
		if session == "" {
			session = ui.RenderMuted("(lobby)")
		}
		idle := time.Duration(e.IdleSecs * float64(time.Second)).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ParticipantID, e.WorkerID, session, e.LastBeat, idle, state)
	}
	tw.Flush()
}
