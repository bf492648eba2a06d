package reconcile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Describe writes a human summary of the plan.
func Describe(w io.Writer, p *Plan) {
	fmt.Fprintf(w, "Account:            %s (%s)\n", p.Account, p.Bank)
	fmt.Fprintf(w, "Cutoff:             %s\n", p.Cutoff)
	fmt.Fprintf(w, "Export rows:        %d\n", p.Before.Canonical)
	fmt.Fprintf(w, "Rebuilt rows kept:  %d (before cutoff)\n", p.ToKeep())
	fmt.Fprintf(w, "Rebuilt rows to remove: %d (on or after cutoff, %d overlap export rows)\n", p.ToRemove(), p.Before.Overlapping)
	fmt.Fprintf(w, "Duplicate keys:     %d\n", p.Before.DuplicateKeys)
	fmt.Fprintf(w, "Totals:             outflow %s, inflow %s\n", p.Before.Outflow.StringFixed(2), p.Before.Inflow.StringFixed(2))
	fmt.Fprintf(w, "Backup table:       %s\n", p.Backup)
	fmt.Fprintf(w, "State:              %s\n", p.State)
}

// Confirm asks the operator to type "yes". Anything else declines.
func Confirm(in io.Reader, out io.Writer, p *Plan) (bool, error) {
	fmt.Fprintf(out, "This deletes %d rebuilt rows for %s after backing them up to %s.\n", p.ToRemove(), p.Account, p.Backup)
	fmt.Fprint(out, "Type 'yes' to continue: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("Confirm: reading answer: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}
