package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el resultado del run en el modo configurado.
func (c *Console) Notify(_ context.Context, diag *domain.Diagnostics, outcomes []domain.SignalOutcome) error {
	if c.table {
		c.printFull(diag, outcomes)
	} else {
		c.printCompact(diag, outcomes)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(diag *domain.Diagnostics, outcomes []domain.SignalOutcome) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s run: %d trades → %d signals, %d eligible, %d executed",
		now, diag.Mode, diag.TradesInspected, diag.SignalsBuilt, diag.Eligible, diag.Executed)
	if diag.Unwound > 0 || diag.Unresolved > 0 {
		fmt.Fprintf(&sb, " (unwound:%d unresolved:%d)", diag.Unwound, diag.Unresolved)
	}
	if diag.BudgetUsed > 0 {
		fmt.Fprintf(&sb, " $%.2f/$%.2f", diag.BudgetUsed, diag.BudgetCap)
	}
	if diag.LatchActive {
		sb.WriteString(" [LATCHED]")
	}

	shown := 0
	for _, o := range outcomes {
		if !o.Status.Executed() || shown >= 3 {
			continue
		}
		fmt.Fprintf(&sb, " | %s/%s %s +%.1f¢ $%.2f",
			o.Signal.Coin, o.Signal.Cadence, compactName(o.Signal.Slug, 30),
			o.Signal.EdgeCents(), o.PairNotional())
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla de señales ejecutadas y el histograma de descartes.
func (c *Console) printFull(diag *domain.Diagnostics, outcomes []domain.SignalOutcome) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %s run %s — %d signals, %d executed, budget $%.2f/$%.2f\n",
		now, diag.Mode, diag.RunID[:8], diag.SignalsBuilt, diag.Executed,
		diag.BudgetUsed, diag.BudgetCap)

	if len(outcomes) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Coin", "Cad", "Market", "PairSum", "Edge¢", "Notional", "Status")

		for i, o := range outcomes {
			table.Append(
				fmt.Sprintf("%d", i+1),
				string(o.Signal.Coin),
				string(o.Signal.Cadence),
				compactName(o.Signal.Slug, 40),
				fmt.Sprintf("%.3f", o.Signal.PairSum),
				fmt.Sprintf("%.1f", o.Signal.EdgeCents()),
				fmt.Sprintf("$%.2f", o.PairNotional()),
				o.Status.String(),
			)
		}
		table.Render()
	}

	if summary := diag.RejectionSummary(); summary != "" {
		fmt.Fprintf(c.out, "  rejected: %s\n", summary)
	}
	if diag.LatchActive {
		fmt.Fprintln(c.out, "  ⚠ SAFETY LATCH ACTIVE — live trading blocked until residuals resolve")
	}
	if diag.ErrorSummary != "" {
		fmt.Fprintf(c.out, "  errors: %s\n", diag.ErrorSummary)
	}
	fmt.Fprintln(c.out)
}

// compactName recorta un slug largo manteniendo el final (el timestamp).
func compactName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
