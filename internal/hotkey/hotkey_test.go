package hotkey

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		mods    Modifier
		key     string
		wantErr bool
	}{
		{"Alt+Space", ModAlt, "space", false},
		{"ctrl + shift + T", ModCtrl | ModShift, "t", false},
		{"Option+Space", ModAlt, "space", false},
		{"Cmd+F12", ModSuper, "f12", false},
		{"F1", 0, "f1", false},
		{"Ctrl+`", ModCtrl, "grave", false},
		{"", 0, "", true},
		{"Alt", 0, "", true},
		{"Alt+A+B", 0, "", true},
		{"Alt+F13", 0, "", true},
		{"Alt+F01", 0, "", true},
		{"Hyper+Space", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if a.Mods != tt.mods || a.Key != tt.key {
				t.Fatalf("Parse(%q) = %+v, want mods %v key %q", tt.in, a, tt.mods, tt.key)
			}
		})
	}
}

func TestAcceleratorString(t *testing.T) {
	tests := map[string]string{
		"alt+space":     "Alt+Space",
		"shift+ctrl+f5": "Ctrl+Shift+F5",
		"super+a":       "Super+A",
	}
	for in, want := range tests {
		a, err := Parse(in)
		if err != nil {
			t.Fatal(err)
		}
		if got := a.String(); got != want {
			t.Errorf("String() of %q = %q, want %q", in, got, want)
		}
	}
}

func TestKeysym(t *testing.T) {
	tests := map[string]string{
		"Alt+Space": "space",
		"F3":        "F3",
		"Ctrl+Tab":  "Tab",
		"Alt+Q":     "q",
	}
	for in, want := range tests {
		a, err := Parse(in)
		if err != nil {
			t.Fatal(err)
		}
		if got := a.keysym(); got != want {
			t.Errorf("keysym of %q = %q, want %q", in, got, want)
		}
	}
}

func feedAll(f *repeatFilter, events ...keyEvent) []keyEvent {
	var out []keyEvent
	for _, ev := range events {
		out = append(out, f.Feed(ev)...)
	}
	return append(out, f.Flush()...)
}

func TestRepeatFilter(t *testing.T) {
	press := func(code int, at uint64) keyEvent { return keyEvent{code: code, pressed: true, time: at} }
	release := func(code int, at uint64) keyEvent { return keyEvent{code: code, time: at} }

	tests := []struct {
		name string
		in   []keyEvent
		want []keyEvent
	}{
		{
			name: "single tap",
			in:   []keyEvent{press(65, 10), release(65, 90)},
			want: []keyEvent{press(65, 10), release(65, 90)},
		},
		{
			name: "synthetic release and press pairs are dropped",
			in: []keyEvent{
				press(65, 10),
				release(65, 500), press(65, 500),
				release(65, 530), press(65, 530),
				release(65, 700),
			},
			want: []keyEvent{press(65, 10), release(65, 700)},
		},
		{
			name: "repeated presses without releases",
			in:   []keyEvent{press(65, 10), press(65, 500), press(65, 530), release(65, 600)},
			want: []keyEvent{press(65, 10), release(65, 600)},
		},
		{
			name: "quick re-press is a new hold",
			in:   []keyEvent{press(65, 10), release(65, 90), press(65, 95), release(65, 150)},
			want: []keyEvent{press(65, 10), release(65, 90), press(65, 95), release(65, 150)},
		},
		{
			name: "other key between release and press",
			in:   []keyEvent{press(65, 10), release(65, 90), press(66, 90), release(66, 120)},
			want: []keyEvent{press(65, 10), release(65, 90), press(66, 90), release(66, 120)},
		},
		{
			name: "stray release",
			in:   []keyEvent{release(65, 10)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feedAll(newRepeatFilter(), tt.in...)
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %+v, want %+v", got, tt.want)
				}
			}
		})
	}
}

func TestRepeatFilterFlushDeliversRelease(t *testing.T) {
	f := newRepeatFilter()
	if got := f.Feed(keyEvent{code: 65, pressed: true, time: 10}); len(got) != 1 {
		t.Fatalf("press: got %+v", got)
	}
	if got := f.Feed(keyEvent{code: 65, time: 90}); len(got) != 0 {
		t.Fatalf("release should wait for the next event, got %+v", got)
	}
	got := f.Flush()
	if len(got) != 1 || got[0].pressed {
		t.Fatalf("Flush() = %+v, want the release", got)
	}
	if got := f.Flush(); got != nil {
		t.Fatalf("second Flush() = %+v, want nothing", got)
	}
}
