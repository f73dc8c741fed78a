package vision

import (
	"fmt"
	"strings"
)

// classifyPrompt demands a strict YES/NO verdict so the response can be
// compared literally.
const classifyPrompt = "You are a strict transaction table investigator. Analyze this table image and determine if it contains bank transactions.\n" +
	"Return ONLY:\n" +
	"- \"YES\" if this is a transaction table with actual transaction rows\n" +
	"- \"NO\" if this is a header, summary, account info, or non-transaction table\n\n" +
	"Be strict - only return YES if you see actual transaction rows with dates, amounts, and descriptions."

// inferSchemaPrompt asks the model to reorder the canonical schema to match
// the observed column sequence and to declare the date direction.
func inferSchemaPrompt(defaultTemplate string) string {
	return "Analyze this bank statement table and identify the column order. Look for transaction tables with headers like Date, Description/Particulars, Debit, Credit, Balance.\n\n" +
		"Based on the column order you observe, reorder this JSON schema to match:\n\n" +
		"Original: " + defaultTemplate + "\n\n" +
		"- If Credit comes before Debit in the table, put \"cr\" before \"dr\" in the JSON\n" +
		"- If Debit comes before Credit in the table, put \"dr\" before \"cr\" in the JSON\n" +
		"- Detect whether dates run in ASCENDING or DESCENDING order\n\n" +
		"Respond with the reordered JSON schema array followed by:\n" +
		"Date_Order: ASCENDING or DESCENDING\n\n" +
		"Rules:\n" +
		"- Keep all fields but reorder them to match the visual column sequence\n" +
		"- Always keep dt first and type last\n" +
		"- Return ONLY the reordered JSON array and the Date_Order line, nothing else"
}

// extractPrompt drives the bulk extraction of one table image. The balance
// continuity self-check is advisory; the reconciliation stage is the
// authoritative correction mechanism.
func extractPrompt(schemaTemplate string) string {
	var b strings.Builder
	b.WriteString("You are a bank statement data extractor. Extract ALL transactions as a JSON array using this schema:\n\n")
	b.WriteString(schemaTemplate)
	b.WriteString("\n\nTABLE ANALYSIS:\n")
	b.WriteString("- Identify columns: Date, Description, Debit, Credit, Balance\n")
	b.WriteString("- Count transaction rows (ignore headers and footers)\n")
	b.WriteString("- Determine date order: ASCENDING (oldest to newest) or DESCENDING (newest to oldest)\n\n")
	b.WriteString("AMOUNT MAPPING (follow the schema field order exactly):\n")
	b.WriteString("- Schema \"dr\" field takes the table's DEBIT column value\n")
	b.WriteString("- Schema \"cr\" field takes the table's CREDIT column value\n")
	b.WriteString("- Withdrawal/Payment: amount in \"dr\", \"cr\"=0.00\n")
	b.WriteString("- Deposit/Credit: amount in \"cr\", \"dr\"=0.00\n\n")
	b.WriteString("DESCRIPTION: extract the COMPLETE text, no truncation.\n\n")
	b.WriteString("VALIDATION (check EVERY row):\n")
	b.WriteString("For ASCENDING dates: balance_previous_row + credit - debit = balance_current_row\n")
	b.WriteString("Example: 1000 + 500 - 0 = 1500\n")
	b.WriteString("For DESCENDING dates: balance_current_row + debit - credit = balance_previous_row\n")
	b.WriteString("Example: 1300 + 200 - 0 = 1500\n")
	b.WriteString("If validation fails you have swapped debit and credit - fix it by swapping them.\n\n")
	b.WriteString("SCHEMA MAPPING:\n")
	b.WriteString("- dt: DD-MM-YYYY format\n")
	b.WriteString("- desc: COMPLETE description text\n")
	b.WriteString("- ref: reference ID (null if none)\n")
	b.WriteString("- dr: debit amount (0.00 if none)\n")
	b.WriteString("- cr: credit amount (0.00 if none)\n")
	b.WriteString("- bal: account balance\n")
	b.WriteString("- type: \"W\" for withdrawal, \"D\" for deposit\n\n")
	b.WriteString("If this is a non-transactional table, return an empty JSON array: []\n\n")
	b.WriteString("OUTPUT: JSON array only, no markdown, no code fences. Validate each row against the previous row before moving on.")
	return b.String()
}

// reconcilePrompt cross-checks extracted records against the deterministic
// reference rows. Only debit/credit assignments may change; all other fields
// are preserved and the row count must be identical.
func reconcilePrompt(schemaTemplate, recordsJSON, referenceJSON string) string {
	var b strings.Builder
	b.WriteString("You are a bank transaction validator with expertise in data analysis.\n\n")
	fmt.Fprintf(&b, "DETECTED SCHEMA (the column order of the primary extraction): %s\n\n", schemaTemplate)
	fmt.Fprintf(&b, "SOURCE 1 - extracted transactions (may have debit/credit swapped): %s\n\n", recordsJSON)
	fmt.Fprintf(&b, "SOURCE 2 - raw reference table (no headers, plain row values): %s\n\n", referenceJSON)
	b.WriteString("YOUR TASK: fix SOURCE 1 debit/credit errors using SOURCE 2 as the validation reference.\n\n")
	b.WriteString("ANALYSIS INSTRUCTIONS:\n")
	b.WriteString("1. Understand the schema order from the detected schema.\n")
	b.WriteString("2. Analyze the raw reference rows: identify which values are dates, which are descriptions,\n")
	b.WriteString("   and which are amounts. Decide whether each amount is a debit or a credit from its column\n")
	b.WriteString("   position, its sign, and description keywords (ATM/withdrawal means debit; deposit/credit means credit).\n")
	b.WriteString("3. Match transactions between the two sources by date proximity, description keyword overlap,\n")
	b.WriteString("   and amount similarity.\n")
	b.WriteString("4. Correct errors: if the reference says a transaction is a DEBIT but SOURCE 1 has dr=0 and cr>0,\n")
	b.WriteString("   swap dr and cr (and vice versa). Keep all other fields (dt, desc, ref, bal, type) exactly the same.\n")
	b.WriteString("   Only correct when you are confident about the match.\n\n")
	b.WriteString("VALIDATION (check EVERY row):\n")
	b.WriteString("For ASCENDING dates: balance_previous_row + credit - debit = balance_current_row\n")
	b.WriteString("For DESCENDING dates: balance_current_row + debit - credit = balance_previous_row\n")
	b.WriteString("If validation fails, the debit and credit are swapped - fix them.\n\n")
	b.WriteString("Never drop, add, or reorder rows.\n")
	b.WriteString("OUTPUT: return the corrected JSON array in exactly the same format and length as SOURCE 1.\n")
	b.WriteString("No explanations, no markdown, just the corrected JSON.")
	return b.String()
}
