package locator

import "testing"

func TestIsDateLike(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"01-02-2024", true},
		{"1/2/24", true},
		{"15 Jan 2024", true},
		{"15-Jan-24", true},
		{"2024-01-15", true},
		{"OPENING BALANCE", false},
		{"nan", false},
		{"", false},
		{"1234.56", false},
	}

	for _, tt := range tests {
		if got := isDateLike(tt.value); got != tt.want {
			t.Errorf("isDateLike(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestIsHeaderRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{"date and balance", []string{"Date", "Particulars", "Balance"}, true},
		{"debit credit", []string{"Txn Date", "Debit", "Credit"}, true},
		{"single group only", []string{"Date", "Something"}, false},
		{"data row", []string{"01-02-2024", "UPI PAYMENT", "500.00"}, false},
		{"empty", []string{"", "nan", ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isHeaderRow(tt.row); got != tt.want {
				t.Errorf("isHeaderRow(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func TestIsTransactionGrid(t *testing.T) {
	tests := []struct {
		name string
		grid Grid
		want bool
	}{
		{
			name: "headers plus keywords",
			grid: Grid{Cells: [][]string{
				{"Date", "Narration", "Debit", "Credit", "Balance"},
				{"01-02-2024", "UPI PAYMENT", "500.00", "", "4500.00"},
				{"02-02-2024", "NEFT TRANSFER", "", "1000.00", "5500.00"},
			}},
			want: true,
		},
		{
			name: "dates plus keywords without header row",
			grid: Grid{Cells: [][]string{
				{"01-02-2024", "ATM withdrawal", "500.00"},
				{"02-02-2024", "Cash deposit", "1000.00"},
			}},
			want: true,
		},
		{
			name: "address block",
			grid: Grid{Cells: [][]string{
				{"MR EXAMPLE CUSTOMER"},
				{"12 SAMPLE STREET"},
				{"SPRINGFIELD"},
			}},
			want: false,
		},
		{
			name: "dates but no banking keywords",
			grid: Grid{Cells: [][]string{
				{"01-02-2024", "event one"},
				{"02-02-2024", "event two"},
			}},
			want: false,
		},
		{
			name: "single row",
			grid: Grid{Cells: [][]string{{"Date", "Debit", "Credit"}}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransactionGrid(tt.grid); got != tt.want {
				t.Errorf("isTransactionGrid() = %v, want %v", got, tt.want)
			}
		})
	}
}
