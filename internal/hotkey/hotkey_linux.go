//go:build linux

package hotkey

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/XKBlib.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

Display* displayPtr = NULL;

static int openDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
        if (displayPtr != NULL) {
            // Held keys repeat as presses only, without synthetic releases.
            XkbSetDetectableAutoRepeat(displayPtr, True, NULL);
        }
    }
    return displayPtr != NULL;
}

int keycodeFor(const char* name) {
    if (!openDisplay()) return 0;
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

int grabKey(int keycode, int modifiers) {
    if (!openDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    XGrabKey(displayPtr, keycode, modifiers, root, False, GrabModeAsync, GrabModeAsync);
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

void ungrabKey(int keycode, int modifiers) {
    if (displayPtr == NULL) return;
    XUngrabKey(displayPtr, keycode, modifiers, DefaultRootWindow(displayPtr));
    XSync(displayPtr, False);
}

// checkEvent returns -1 when the queue is empty, 0 for a skipped event and
// 1 for a key event.
int checkEvent(int* keycode, int* pressed, unsigned long* time) {
    if (displayPtr == NULL) return -1;
    if (XPending(displayPtr) == 0) return -1;

    XEvent event;
    XNextEvent(displayPtr, &event);
    if (event.type == KeyPress || event.type == KeyRelease) {
        *keycode = event.xkey.keycode;
        *pressed = (event.type == KeyPress) ? 1 : 0;
        *time = event.xkey.time;
        return 1;
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

type grab struct {
	keycode   int
	modifiers int
}

type linuxManager struct {
	mu        sync.Mutex
	callbacks map[int]func(bool)
	grabs     map[string]grab
	stop      chan struct{}
	once      sync.Once
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		callbacks: make(map[int]func(bool)),
		grabs:     make(map[string]grab),
		stop:      make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

// x11Modifiers maps to ShiftMask, ControlMask, Mod1Mask and Mod4Mask.
func x11Modifiers(m Modifier) int {
	var mask int
	if m&ModShift != 0 {
		mask |= 1
	}
	if m&ModCtrl != 0 {
		mask |= 4
	}
	if m&ModAlt != 0 {
		mask |= 8
	}
	if m&ModSuper != 0 {
		mask |= 64
	}
	return mask
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	a, err := Parse(accel)
	if err != nil {
		return err
	}

	name := C.CString(a.keysym())
	defer C.free(unsafe.Pointer(name))

	keycode := int(C.keycodeFor(name))
	if keycode == 0 {
		return fmt.Errorf("failed to resolve key %q (is an X display available?)", a.Key)
	}
	modifiers := x11Modifiers(a.Mods)

	if C.grabKey(C.int(keycode), C.int(modifiers)) == 0 {
		return fmt.Errorf("failed to grab key %s", a)
	}

	m.mu.Lock()
	m.callbacks[keycode] = callback
	m.grabs[accel] = grab{keycode: keycode, modifiers: modifiers}
	m.mu.Unlock()
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	filter := newRepeatFilter()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for {
				var keycode, pressed C.int
				var stamp C.ulong
				rc := C.checkEvent(&keycode, &pressed, &stamp)
				if rc < 0 {
					break
				}
				if rc == 0 {
					continue
				}
				m.dispatch(filter.Feed(keyEvent{
					code:    int(keycode),
					pressed: pressed == 1,
					time:    uint64(stamp),
				}))
			}
			// A release still held back has no repeat press queued behind it.
			m.dispatch(filter.Flush())
		}
	}
}

func (m *linuxManager) dispatch(events []keyEvent) {
	for _, ev := range events {
		m.mu.Lock()
		cb, ok := m.callbacks[ev.code]
		m.mu.Unlock()
		if ok {
			cb(ev.pressed)
		}
	}
}

func (m *linuxManager) Unregister(accel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grabs[accel]
	if !ok {
		return nil
	}
	C.ungrabKey(C.int(g.keycode), C.int(g.modifiers))
	delete(m.grabs, accel)
	delete(m.callbacks, g.keycode)
	return nil
}

func (m *linuxManager) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
