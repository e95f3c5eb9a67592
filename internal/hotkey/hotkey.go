package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned where no global hotkey backend exists.
var ErrUnsupported = errors.New("global hotkeys are not supported on this platform")

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// Modifier is a bit set of held modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Accelerator is a parsed key combination such as "Ctrl+Alt+T".
type Accelerator struct {
	Mods Modifier
	// Key is lower case: a letter, a digit, "space", "tab", "grave" or "f1".."f12".
	Key string
}

var modifierNames = map[string]Modifier{
	"shift":   ModShift,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"win":     ModSuper,
}

// Parse reads an accelerator string. Parts are separated by '+', matching
// is case-insensitive, and exactly one non-modifier key is required.
func Parse(accel string) (Accelerator, error) {
	var a Accelerator
	if strings.TrimSpace(accel) == "" {
		return a, errors.New("empty hotkey")
	}

	for _, part := range strings.Split(accel, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		if mod, ok := modifierNames[name]; ok {
			a.Mods |= mod
			continue
		}
		if a.Key != "" {
			return Accelerator{}, fmt.Errorf("hotkey %q has more than one key", accel)
		}
		key, ok := normalizeKey(name)
		if !ok {
			return Accelerator{}, fmt.Errorf("hotkey %q: unknown key %q", accel, part)
		}
		a.Key = key
	}

	if a.Key == "" {
		return Accelerator{}, fmt.Errorf("hotkey %q has no key", accel)
	}
	return a, nil
}

func normalizeKey(name string) (string, bool) {
	switch name {
	case "space", "tab", "grave":
		return name, true
	case "`":
		return "grave", true
	}
	if len(name) == 1 && (name[0] >= 'a' && name[0] <= 'z' || name[0] >= '0' && name[0] <= '9') {
		return name, true
	}
	if len(name) >= 2 && name[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(name[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == name[1:] {
			return name, true
		}
	}
	return "", false
}

func (a Accelerator) String() string {
	var parts []string
	if a.Mods&ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if a.Mods&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if a.Mods&ModShift != 0 {
		parts = append(parts, "Shift")
	}
	if a.Mods&ModSuper != 0 {
		parts = append(parts, "Super")
	}
	key := strings.ToUpper(a.Key[:1]) + a.Key[1:]
	if a.isFunctionKey() {
		key = strings.ToUpper(a.Key)
	}
	return strings.Join(append(parts, key), "+")
}

func (a Accelerator) isFunctionKey() bool {
	return len(a.Key) > 1 && a.Key[0] == 'f' && a.Key[1] >= '0' && a.Key[1] <= '9'
}

// keysym is the X11 keysym name for the key.
func (a Accelerator) keysym() string {
	if a.isFunctionKey() {
		return strings.ToUpper(a.Key)
	}
	if a.Key == "tab" {
		return "Tab"
	}
	return a.Key
}

type keyEvent struct {
	code    int
	pressed bool
	// time is the server timestamp in milliseconds.
	time uint64
}

// repeatFilter reduces a raw key stream to one press and one release per
// physical hold. Auto-repeat shows up either as extra presses, or as a
// release immediately followed by a press with the same keycode and
// timestamp. A release is therefore held back until the next event, or
// until Flush, before it is passed on.
type repeatFilter struct {
	held    map[int]bool
	release *keyEvent
}

func newRepeatFilter() *repeatFilter {
	return &repeatFilter{held: make(map[int]bool)}
}

// Feed takes the next raw event and returns the events to deliver.
func (f *repeatFilter) Feed(ev keyEvent) []keyEvent {
	var out []keyEvent
	if r := f.release; r != nil {
		f.release = nil
		if ev.pressed && ev.code == r.code && ev.time == r.time {
			return nil
		}
		out = f.edge(out, *r)
	}
	if !ev.pressed && f.held[ev.code] {
		f.release = &ev
		return out
	}
	return f.edge(out, ev)
}

// Flush releases a held-back release.
func (f *repeatFilter) Flush() []keyEvent {
	r := f.release
	if r == nil {
		return nil
	}
	f.release = nil
	return f.edge(nil, *r)
}

// edge appends ev when it changes the key's held state.
func (f *repeatFilter) edge(out []keyEvent, ev keyEvent) []keyEvent {
	if f.held[ev.code] == ev.pressed {
		return out
	}
	if ev.pressed {
		f.held[ev.code] = true
	} else {
		delete(f.held, ev.code)
	}
	return append(out, ev)
}
