// Package callback generates and parses the inline control-button wire
// format exchanged with the chat client: "{prefix}:{local_token}:{action}"
// in its current form, plus the legacy 4-field
// "{prefix}:{message_id}:{token}:{action}" form emitted by older sessions
// that may still be sitting in a user's chat history after an upgrade.
// Grounded 1:1 on castbot/button.py and castbot/bot.py's callback split.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"streamer/internal/token"
)

// Prefix identifies which control family a callback belongs to.
type Prefix string

const (
	// PrefixControl is video playback control: PLAY/STOP/PAUSE/RESUME/
	// DEVICE/REFRESH.
	PrefixControl Prefix = "c"
	// PrefixDeviceMenu is the device-selection menu's own refresh/open
	// actions. Accepts the legacy "c" prefix too for backward
	// compatibility, matching DeviceMenuButton.OLD_PREFIX.
	PrefixDeviceMenu Prefix = "d"
	// PrefixSelectDevice is a device picked from the selection menu.
	PrefixSelectDevice Prefix = "s"
)

// ErrMalformed is returned for callback data that doesn't split into a
// recognized field count.
var ErrMalformed = errors.New("callback: malformed callback data")

// ErrUnknownCallback is returned when the prefix isn't one this package
// knows how to route.
var ErrUnknownCallback = errors.New("callback: unknown callback prefix")

// Data is a parsed callback: which control family it belongs to, the
// session token it refers to, and the action payload (a button label like
// "PLAY", "STOP", or a device name for PrefixSelectDevice).
type Data struct {
	Prefix Prefix
	Token  token.LocalToken
	Action string
}

// Gen renders prefix:token:action, the current wire format every button
// this service emits uses.
func Gen(prefix Prefix, tok token.LocalToken, action string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, tok.String(), action)
}

// Parse splits raw callback data into its prefix, token and action,
// accepting both the current 3-field form and the legacy 4-field form
// (prefix:message_id:token:action) that carries the token's two halves as
// separate decimal fields instead of one packed hex blob.
func Parse(raw string) (Data, error) {
	parts := strings.Split(raw, ":")

	if len(parts) == 3 || len(parts) == 4 {
		switch Prefix(parts[0]) {
		case PrefixControl, PrefixDeviceMenu, PrefixSelectDevice:
		default:
			return Data{}, fmt.Errorf("%w: %q", ErrUnknownCallback, parts[0])
		}
	}

	switch len(parts) {
	case 3:
		tok, err := token.Parse(parts[1])
		if err != nil {
			return Data{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Data{Prefix: Prefix(parts[0]), Token: tok, Action: parts[2]}, nil

	case 4:
		messageID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return Data{}, fmt.Errorf("%w: bad legacy message id: %v", ErrMalformed, err)
		}
		random, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return Data{}, fmt.Errorf("%w: bad legacy token: %v", ErrMalformed, err)
		}
		return Data{
			Prefix: Prefix(parts[0]),
			Token:  token.FromParts(messageID, random),
			Action: parts[3],
		}, nil

	default:
		return Data{}, fmt.Errorf("%w: want 3 or 4 fields, got %d", ErrMalformed, len(parts))
	}
}

// AcceptsPrefix reports whether got is a prefix this Data's family
// recognizes, honoring PrefixDeviceMenu's acceptance of the legacy "c"
// prefix (DeviceMenuButton.OLD_PREFIX in the source).
func AcceptsPrefix(family Prefix, got Prefix) bool {
	if got == family {
		return true
	}
	return family == PrefixDeviceMenu && got == PrefixControl
}
