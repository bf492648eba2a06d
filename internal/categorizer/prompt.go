package categorizer

import (
	"strings"

	"github.com/dvloznov/budget-updater/internal/domain"
)

// buildInstruction constructs the system instruction with the assignable
// categories formatted for the model.
func buildInstruction(t *Taxonomy) string {
	var b strings.Builder
	b.WriteString("You are a meticulous financial assistant. You categorize personal financial transactions\n")
	b.WriteString("for a budget spreadsheet and write a short human-readable summary for each.\n\n")

	b.WriteString("Workflow:\n")
	b.WriteString("1. Read the date, amount, raw description and account of the transaction.\n")
	b.WriteString("2. Call the " + toolName + " tool to look for receipts or invoices. The call is mandatory.\n")
	b.WriteString("   A suggested query is provided; it combines the amount spellings with OR and bounds the date.\n")
	b.WriteString("   You may refine it with merchant keywords taken from the raw description.\n")
	b.WriteString("3. Choose the single most appropriate category from the list below using the transaction\n")
	b.WriteString("   and any relevant email. If nothing fits or you are unsure, use \"" + domain.ManualReview + "\".\n")
	b.WriteString("4. Summarize the transaction, enriched with email details when an email was relevant.\n\n")

	b.WriteString("Use ONLY the following categories:\n\n")
	for _, c := range t.Assignable() {
		b.WriteString("- " + c.Name)
		if c.Description != "" {
			b.WriteString(": " + c.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT RULES:\n")
	b.WriteString("1. Category must be EXACTLY one of the category names above, or \"" + domain.ManualReview + "\".\n")
	b.WriteString("2. If no email was relevant, email_summary must be \"" + domain.NoEmailUsed + "\".\n")
	b.WriteString("3. Return ONLY a raw JSON object with the keys category, summary, query and email_summary.\n")
	b.WriteString("4. Do NOT wrap the response in code fences or add any other text.\n")
	return b.String()
}

func buildTransactionPrompt(tx *domain.StandardizedTransaction, suggestedQuery string) string {
	var b strings.Builder
	b.WriteString("Categorize this transaction.\n\n")
	b.WriteString("Date: " + tx.TransactionDate.String() + "\n")
	b.WriteString("Amount: " + domain.FormatAmount(tx.Amount) + " " + tx.Currency + "\n")
	b.WriteString("Raw Description: " + tx.Description + "\n")
	b.WriteString("Account: " + tx.Account + "\n")
	b.WriteString("Suggested search query: " + suggestedQuery + "\n")
	return b.String()
}
