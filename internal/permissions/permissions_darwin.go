//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation -framework Cocoa
#import <AVFoundation/AVFoundation.h>
#import <Cocoa/Cocoa.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}

int checkAccessibilityPermission() {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @YES};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

import "errors"

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

var (
	// ErrMicrophone means capture would deliver silence or fail to open.
	ErrMicrophone = errors.New("microphone permission not granted")
	// ErrAccessibility means the global hotkey cannot be registered. Chat
	// commands on stdin still work without it.
	ErrAccessibility = errors.New("accessibility permission not granted (System Settings > Privacy & Security > Accessibility)")
)

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// CheckAccessibility reports whether global hotkeys may be grabbed. It shows
// the system prompt when they may not.
func CheckAccessibility() bool {
	return int(C.checkAccessibilityPermission()) == 1
}

// EnsurePermissions checks and requests what capture and the hotkey need.
// Both checks always run so the user sees every prompt at once.
func EnsurePermissions() error {
	var errs []error
	if CheckMicrophone() != PermissionAuthorized {
		RequestMicrophone()
		errs = append(errs, ErrMicrophone)
	}
	if !CheckAccessibility() {
		errs = append(errs, ErrAccessibility)
	}
	return errors.Join(errs...)
}
