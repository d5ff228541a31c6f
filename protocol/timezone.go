// File: protocol/timezone.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Time zone resolution for the time command. Identifiers are IANA names,
// three-letter aliases, or UTC offsets; anything else is unresolvable.

package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database independent of the host
)

// TimeLayout renders yyyy-MMM-dd HH:mm:ss zzz.
const TimeLayout = "2006-Jan-02 15:04:05 MST"

// shortIDs maps legacy three-letter zone ids onto region ids.
var shortIDs = map[string]string{
	"ACT": "Australia/Darwin",
	"AET": "Australia/Sydney",
	"AGT": "America/Argentina/Buenos_Aires",
	"ART": "Africa/Cairo",
	"AST": "America/Anchorage",
	"BET": "America/Sao_Paulo",
	"BST": "Asia/Dhaka",
	"CAT": "Africa/Harare",
	"CNT": "America/St_Johns",
	"CST": "America/Chicago",
	"CTT": "Asia/Shanghai",
	"EAT": "Africa/Addis_Ababa",
	"ECT": "Europe/Paris",
	"IET": "America/Indiana/Indianapolis",
	"IST": "Asia/Kolkata",
	"JST": "Asia/Tokyo",
	"MIT": "Pacific/Apia",
	"NET": "Asia/Yerevan",
	"NST": "Pacific/Auckland",
	"PLT": "Asia/Karachi",
	"PNT": "America/Phoenix",
	"PRT": "America/Puerto_Rico",
	"PST": "America/Los_Angeles",
	"SST": "Pacific/Guadalcanal",
	"VST": "Asia/Ho_Chi_Minh",
}

// fixedIDs are aliases that resolve to a constant offset.
var fixedIDs = map[string]int{
	"EST": -5 * 3600,
	"MST": -7 * 3600,
	"HST": -10 * 3600,
}

// ResolveZone looks up a zone id. ok is false when id cannot be resolved.
func ResolveZone(id string) (loc *time.Location, ok bool) {
	id = strings.TrimSpace(id)
	if id == "" || id == "Local" {
		return nil, false
	}
	if offset, found := fixedIDs[id]; found {
		return time.FixedZone(id, offset), true
	}
	if region, found := shortIDs[id]; found {
		id = region
	}
	if loc, err := time.LoadLocation(id); err == nil {
		return loc, true
	}
	if loc, err := parseOffsetZone(id); err == nil {
		return loc, true
	}
	return nil, false
}

// parseOffsetZone accepts Z, +h, +hh, +hhmm, +hh:mm, optionally prefixed by
// GMT, UTC or UT.
func parseOffsetZone(id string) (*time.Location, error) {
	if id == "Z" {
		return time.UTC, nil
	}
	prefix := ""
	for _, p := range []string{"GMT", "UTC", "UT"} {
		if strings.HasPrefix(id, p) {
			prefix = p
			break
		}
	}
	rest := id[len(prefix):]
	if len(rest) < 2 || (rest[0] != '+' && rest[0] != '-') {
		return nil, fmt.Errorf("zone %q: not an offset", id)
	}
	sign := 1
	if rest[0] == '-' {
		sign = -1
	}
	digits := rest[1:]
	if len(digits) == 5 && digits[2] == ':' {
		digits = digits[:2] + digits[3:]
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return nil, fmt.Errorf("zone %q: bad offset digits", id)
		}
	}
	var hh, mm int
	var err error
	switch len(digits) {
	case 1, 2:
		hh, err = strconv.Atoi(digits)
	case 4:
		if hh, err = strconv.Atoi(digits[:2]); err == nil {
			mm, err = strconv.Atoi(digits[2:])
		}
	default:
		err = fmt.Errorf("zone %q: bad offset length", id)
	}
	if err != nil {
		return nil, err
	}
	if hh > 18 || mm > 59 {
		return nil, fmt.Errorf("zone %q: offset out of range", id)
	}
	secs := sign * (hh*3600 + mm*60)
	name := fmt.Sprintf("%s%c%02d:%02d", prefix, rest[0], hh, mm)
	return time.FixedZone(name, secs), nil
}
