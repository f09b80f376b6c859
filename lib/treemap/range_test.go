package treemap

import "testing"

func TestRangeIntersects(t *testing.T) {
	b := func(s string) []byte { return []byte(s) }

	tests := []struct {
		name string
		a, o Range
		want bool
	}{
		{"overlap", Closed(b("a"), b("c")), Closed(b("b"), b("d")), true},
		{"disjoint", Closed(b("a"), b("b")), Closed(b("c"), b("d")), false},
		{"touching closed", Closed(b("a"), b("c")), Closed(b("c"), b("d")), true},
		{"touching open", Range{From: b("a"), To: b("c"), FromInclusive: true}, Closed(b("c"), b("d")), false},
		{"contained", Closed(b("a"), b("z")), Closed(b("m"), b("n")), true},
		{"unbounded both", All(), Closed(b("x"), b("y")), true},
		{"unbounded below", AtMost(b("c")), AtLeast(b("d")), false},
		{"unbounded meet", AtMost(b("c")), AtLeast(b("c")), true},
		{"empty range", Range{From: b("c"), To: b("c")}, All(), false},
		{"same exclusive start", Range{From: b("a"), To: b("b")}, Range{From: b("a"), To: b("b")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersects(tt.o); got != tt.want {
				t.Errorf("%v.Intersects(%v) = %v, want %v", tt.a, tt.o, got, tt.want)
			}
			if got := tt.o.Intersects(tt.a); got != tt.want {
				t.Errorf("%v.Intersects(%v) = %v, want %v", tt.o, tt.a, got, tt.want)
			}
		})
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{From: []byte("b"), To: []byte("d"), ToInclusive: true}
	for key, want := range map[string]bool{"a": false, "b": false, "c": true, "d": true, "e": false} {
		if got := r.Contains([]byte(key)); got != want {
			t.Errorf("Contains(%s) = %v, want %v", key, got, want)
		}
	}
}
