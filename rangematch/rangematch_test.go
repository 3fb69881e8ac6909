package rangematch

import "testing"

func TestAdvisoryExpression(t *testing.T) {
	e, err := Parse(">=1.2.3, <2.0.0 | ^0.9.5")
	if err != nil {
		t.Fatal(err)
	}
	tt := []struct {
		Version  string
		Affected bool
	}{
		{"1.2.3", false},
		{"1.9.9", false},
		{"0.9.5", false},
		{"0.9.4", true},
		{"2.0.0", true},
	}
	for _, tc := range tt {
		if got := e.Affected(tc.Version); got != tc.Affected {
			t.Errorf("%s: got affected=%v, want %v", tc.Version, got, tc.Affected)
		}
	}
}

func TestEmptyExpression(t *testing.T) {
	e, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if !e.Affected("1.0.0") {
		t.Error("empty patched expression must treat every version as affected")
	}
}

func TestOpenRays(t *testing.T) {
	tt := []struct {
		Patched  string
		Version  string
		Affected bool
	}{
		{"> 1.0.0", "1.0.0", true},
		{"> 1.0.0", "1.0.1", false},
		{">= 1.0.0", "1.0.0", false},
		{"< 2.0.0", "1.9.9", false},
		{"< 2.0.0", "2.0.0", true},
		{"<= 2.0.0", "2.0.0", false},
		// Mixed-endpoint intervals.
		{"> 1.0.0, <= 2.0.0", "2.0.0", false},
		{"> 1.0.0, <= 2.0.0", "1.0.0", true},
		{">= 0.5.0, < 0.6.0", "0.5.0", false},
	}
	for _, tc := range tt {
		e, err := Parse(tc.Patched)
		if err != nil {
			t.Fatalf("%q: %v", tc.Patched, err)
		}
		if got := e.Affected(tc.Version); got != tc.Affected {
			t.Errorf("%q vs %s: got affected=%v, want %v", tc.Patched, tc.Version, got, tc.Affected)
		}
	}
}

func TestUnparseableVersionOrdersLow(t *testing.T) {
	e, err := Parse("< 2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	// Below everything, so inside any upper ray.
	if e.Affected("not-a-version") {
		t.Error("unparseable version should satisfy an upper bound")
	}
	e, err = Parse(">= 1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !e.Affected("not-a-version") {
		t.Error("unparseable version should fail a lower bound")
	}
}

func TestBadClauseDropped(t *testing.T) {
	e, err := Parse("garbage | >= 1.0.0")
	if err == nil {
		t.Error("expected a parse error report for the dropped clause")
	}
	// The surviving clause still evaluates.
	if e.Affected("1.5.0") {
		t.Error("1.5.0 is patched by the surviving clause")
	}
	if !e.Affected("0.1.0") {
		t.Error("0.1.0 is not patched by any clause")
	}
}

func TestWhitespaceTrimmed(t *testing.T) {
	e, err := Parse("  >= 1.2.3 ,  < 2.0.0  |  ^ 0.9.5 ")
	if err != nil {
		t.Fatal(err)
	}
	if e.Affected("1.5.0") || e.Affected("0.9.5") {
		t.Error("whitespace inside clauses must be ignored")
	}
}
