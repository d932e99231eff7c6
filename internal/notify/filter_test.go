package notify

import "testing"

func TestDefaultClasses(t *testing.T) {
	classes := DefaultClasses(40)
	high, _ := ClassByName(classes, "high-stock")
	low, _ := ClassByName(classes, "low-stock")

	tests := []struct {
		count    float64
		wantHigh bool
	}{
		{50, true},
		{41, true},
		{40, false},
		{0, false},
	}
	for _, tt := range tests {
		attrs := map[string]float64{AttrCount: tt.count}
		if got := high.Policy.Matches(attrs); got != tt.wantHigh {
			t.Errorf("count=%v high.Matches = %v, want %v", tt.count, got, tt.wantHigh)
		}
		if got := low.Policy.Matches(attrs); got == tt.wantHigh {
			t.Errorf("count=%v low.Matches = %v, want %v", tt.count, got, !tt.wantHigh)
		}
	}
}

func TestFilterPolicy_Matches(t *testing.T) {
	tests := []struct {
		name   string
		policy FilterPolicy
		attrs  map[string]float64
		want   bool
	}{
		{"empty policy", FilterPolicy{}, nil, true},
		{"missing attribute", FilterPolicy{"count": {{">", 1}}}, map[string]float64{}, false},
		{"range inside", FilterPolicy{"count": {{">=", 10}, {"<", 20}}}, map[string]float64{"count": 10}, true},
		{"range upper bound", FilterPolicy{"count": {{">=", 10}, {"<", 20}}}, map[string]float64{"count": 20}, false},
		{"equals", FilterPolicy{"count": {{"=", 7}}}, map[string]float64{"count": 7}, true},
		{"unknown op", FilterPolicy{"count": {{"!=", 7}}}, map[string]float64{"count": 8}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Matches(tt.attrs); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	p, err := ParseFilter("count>=10, count<100")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	conds := p["count"]
	if len(conds) != 2 || conds[0] != (Condition{">=", 10}) || conds[1] != (Condition{"<", 100}) {
		t.Errorf("ParseFilter() = %v", p)
	}

	p, err = ParseFilter("count<=40")
	if err != nil || p["count"][0] != (Condition{"<=", 40}) {
		t.Errorf("ParseFilter(count<=40) = %v, %v", p, err)
	}

	for _, bad := range []string{">5", "count", "count>lots", "count=>4"} {
		if _, err := ParseFilter(bad); err == nil {
			t.Errorf("ParseFilter(%q) expected error", bad)
		}
	}
}

func TestFilterPolicy_StringRoundTrips(t *testing.T) {
	for _, in := range []string{"count>40", "count<=40", "count<100,count>=10"} {
		p, err := ParseFilter(in)
		if err != nil {
			t.Fatalf("ParseFilter(%q) error = %v", in, err)
		}
		again, err := ParseFilter(p.String())
		if err != nil {
			t.Fatalf("ParseFilter(%q) error = %v", p.String(), err)
		}
		for _, count := range []float64{5, 10, 40, 41, 99, 100} {
			attrs := map[string]float64{AttrCount: count}
			if p.Matches(attrs) != again.Matches(attrs) {
				t.Errorf("%q -> %q disagrees at count %v", in, p.String(), count)
			}
		}
	}
}

func TestParseClasses(t *testing.T) {
	classes, err := ParseClasses("high-stock:count>40; low-stock:count<=40", 0)
	if err != nil {
		t.Fatalf("ParseClasses() error = %v", err)
	}
	if len(classes) != 2 {
		t.Fatalf("got %d classes, want 2", len(classes))
	}
	low, ok := ClassByName(classes, "low-stock")
	if !ok {
		t.Fatal("low-stock missing")
	}
	if !low.Policy.Matches(map[string]float64{AttrCount: 40}) || low.Policy.Matches(map[string]float64{AttrCount: 41}) {
		t.Errorf("low-stock policy = %v", low.Policy)
	}
}

func TestParseClasses_EmptyUsesDefaults(t *testing.T) {
	classes, err := ParseClasses("  ", 12)
	if err != nil {
		t.Fatal(err)
	}
	high, ok := ClassByName(classes, "high-stock")
	if !ok || high.Policy.String() != "count>12" {
		t.Errorf("default classes = %+v", classes)
	}
}

func TestParseClasses_Invalid(t *testing.T) {
	for _, in := range []string{
		"count>40",
		":count>40",
		"a:count>1;a:count<1",
		"a:count>>1",
		";;",
	} {
		if _, err := ParseClasses(in, 40); err == nil {
			t.Errorf("ParseClasses(%q) expected error", in)
		}
	}
}
