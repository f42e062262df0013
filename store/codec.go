// codec.go implements the line-oriented text encoding described in §4.3 and
// §6.3: section headers, escaped values, and the event/config sections.
package store

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/recurrence"
	"github.com/maemo-leste/alarmd/state"
)

// userAttr type tags, written as the "type" field of each persisted
// user-attribute entry (§3: name -> int | instant | string).
const (
	attrTypeInt    = "i"
	attrTypeTime   = "t"
	attrTypeString = "s"
)

// escape encodes a value per §4.3: backslash, newline, carriage return,
// tab and backspace use the short forms \\ \n \r \t \b; other control
// bytes and all non-ASCII bytes escape as \xHH.
func escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&b, `\x%02X`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// unescape reverses escape.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'x':
			if i+2 < len(s) {
				var v int
				if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &v); err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			b.WriteByte('x')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

const keyValSep = "="

func writeKV(b *strings.Builder, key, val string) {
	fmt.Fprintf(b, "%s%s%s\n", key, keyValSep, escape(val))
}

func writeKVInt(b *strings.Builder, key string, val int64) {
	writeKV(b, key, strconv.FormatInt(val, 10))
}

// Encode renders the queue and the default snooze as the canonical
// line-oriented text format (§4.3, §6.3).
func Encode(events []*queue.Event, defaultSnooze int32) []byte {
	var b strings.Builder

	b.WriteString("[config]\n")
	writeKVInt(&b, "snooze", int64(defaultSnooze))
	b.WriteString("\n")

	sorted := append([]*queue.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, e := range sorted {
		fmt.Fprintf(&b, "[#%x]\n", e.ID)
		writeKVInt(&b, "id", e.ID)
		writeKV(&b, "state", e.State.String())
		writeKVInt(&b, "trigger", instantSeconds(e.Trigger))
		writeKVInt(&b, "flags", int64(e.Flags))
		writeKV(&b, "app", e.App)
		writeKV(&b, "title", e.Title)
		writeKV(&b, "message", e.Message)
		writeKV(&b, "sound", e.SoundPath)
		writeKV(&b, "icon", e.IconPath)
		writeKVInt(&b, "snooze", int64(e.SnoozeSeconds))
		if e.HasSnoozeAnchor {
			writeKVInt(&b, "snoozeanchor", instantSeconds(e.SnoozeAnchor))
		}
		writeKVInt(&b, "response", int64(e.Response))
		writeKVInt(&b, "spechasabs", boolInt(e.Spec.HasAbsolute))
		if e.Spec.HasAbsolute {
			writeKVInt(&b, "specabs", instantSeconds(e.Spec.Absolute))
		}
		writeKVInt(&b, "specyear", int64(e.Spec.BrokenDown.Year))
		writeKVInt(&b, "specmonth", int64(e.Spec.BrokenDown.Month))
		writeKVInt(&b, "specday", int64(e.Spec.BrokenDown.Day))
		writeKVInt(&b, "spechour", int64(e.Spec.BrokenDown.Hour))
		writeKVInt(&b, "specminute", int64(e.Spec.BrokenDown.Minute))
		writeKVInt(&b, "specsecond", int64(e.Spec.BrokenDown.Second))
		writeKVInt(&b, "specdst", int64(e.Spec.BrokenDown.DSTHint))
		if e.Spec.Zone != nil {
			writeKV(&b, "speczone", e.Spec.Zone.String())
		}
		writeUserAttrs(&b, e.UserAttrs)
		writeKVInt(&b, "recurperiod", int64(e.Recur.Period/time.Second))
		writeKVInt(&b, "recurcount", int64(e.Recur.Count))
		writeKVInt(&b, "nmasks", int64(len(e.Recur.Masks)))
		for i, m := range e.Recur.Masks {
			prefix := fmt.Sprintf("mask%d.", i)
			writeKVInt(&b, prefix+"minute", int64(m.Schedule.Minute))
			writeKVInt(&b, prefix+"hour", int64(m.Schedule.Hour))
			writeKVInt(&b, prefix+"dom", int64(m.Schedule.Dom))
			writeKVInt(&b, prefix+"month", int64(m.Schedule.Month))
			writeKVInt(&b, prefix+"dow", int64(m.Schedule.Dow))
			writeKVInt(&b, prefix+"special", int64(m.Special))
			if m.LastDayOfMonth {
				writeKVInt(&b, prefix+"lastday", 1)
			}
		}
		writeKVInt(&b, "nactions", int64(len(e.Actions)))
		for i, a := range e.Actions {
			prefix := fmt.Sprintf("action%d.", i)
			writeKVInt(&b, prefix+"when", int64(a.When))
			writeKVInt(&b, prefix+"type", int64(a.Type))
			writeKV(&b, prefix+"label", a.Label)
			writeKV(&b, prefix+"execcmd", a.ExecCmd)
			writeKVInt(&b, prefix+"execappendid", boolInt(a.ExecAppendID))
			writeKV(&b, prefix+"msgiface", a.MsgInterface)
			writeKV(&b, prefix+"msgpath", a.MsgPath)
			writeKV(&b, prefix+"msgmember", a.MsgMember)
			writeKV(&b, prefix+"msgdest", a.MsgDestination)
			writeKVInt(&b, prefix+"msgautostart", boolInt(a.MsgAutoStart))
			writeKVInt(&b, prefix+"msgsystembus", boolInt(a.MsgSystemBus))
			writeKVInt(&b, prefix+"msgappendid", boolInt(a.MsgAppendID))
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// writeUserAttrs persists the free-form name->(int|instant|string) map
// (§3), sorted by name so the encoding is deterministic (required for the
// unchanged-since-last-save byte comparison in §4.3).
func writeUserAttrs(b *strings.Builder, attrs queue.Attrs) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	writeKVInt(b, "nuserattrs", int64(len(names)))
	for i, name := range names {
		prefix := fmt.Sprintf("userattr%d.", i)
		writeKV(b, prefix+"name", name)
		switch v := attrs[name].(type) {
		case time.Time:
			writeKV(b, prefix+"type", attrTypeTime)
			writeKVInt(b, prefix+"value", instantSeconds(v))
		case string:
			writeKV(b, prefix+"type", attrTypeString)
			writeKV(b, prefix+"value", v)
		default:
			writeKV(b, prefix+"type", attrTypeInt)
			writeKVInt(b, prefix+"value", toInt64(v))
		}
	}
}

// toInt64 widens any of the integer kinds the client may have supplied for
// a user attribute into the int64 the format stores.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func instantSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Decode parses the canonical text format back into events plus the
// default snooze. Events whose persisted state is TRIGGERED, WAITSYSUI,
// SYSUI_REQ, SYSUI_ACK, or SYSUI_RSP are rewound to LIMBO, per §4.3.
func Decode(data []byte) ([]*queue.Event, int32, error) {
	var events []*queue.Event
	var defaultSnooze int32

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur map[string]string
	var inConfig bool
	flush := func() {
		if cur == nil {
			return
		}
		if inConfig {
			if v, ok := cur["snooze"]; ok {
				if n, err := strconv.Atoi(v); err == nil {
					defaultSnooze = int32(n)
				}
			}
		} else {
			e := decodeEvent(cur)
			if e != nil {
				events = append(events, e)
			}
		}
		cur = nil
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := line[1 : len(line)-1]
			cur = map[string]string{}
			inConfig = header == "config"
			continue
		}
		idx := strings.Index(line, keyValSep)
		if idx < 0 || cur == nil {
			continue
		}
		key := line[:idx]
		val := unescape(line[idx+1:])
		cur[key] = val
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}
	return events, defaultSnooze, nil
}

func getInt64(m map[string]string, key string) int64 {
	v, _ := strconv.ParseInt(m[key], 10, 64)
	return v
}

func getBool(m map[string]string, key string) bool {
	return getInt64(m, key) != 0
}

func decodeEvent(m map[string]string) *queue.Event {
	idStr, ok := m["id"]
	if !ok {
		return nil
	}
	id, _ := strconv.ParseInt(idStr, 10, 64)

	e := &queue.Event{
		ID:            id,
		State:         parseState(m["state"]),
		App:           m["app"],
		Title:         m["title"],
		Message:       m["message"],
		SoundPath:     m["sound"],
		IconPath:      m["icon"],
		SnoozeSeconds: int32(getInt64(m, "snooze")),
		Response:      int32(getInt64(m, "response")),
	}
	if trig := getInt64(m, "trigger"); trig != 0 {
		e.Trigger = time.Unix(trig, 0)
	}
	if anchor, ok := m["snoozeanchor"]; ok && anchor != "" {
		sec, _ := strconv.ParseInt(anchor, 10, 64)
		e.SnoozeAnchor = time.Unix(sec, 0)
		e.HasSnoozeAnchor = true
	}
	e.Flags = queue.Flags(getInt64(m, "flags"))
	e.Spec = decodeSpec(m)
	e.UserAttrs = decodeUserAttrs(m)
	e.Recur.Period = time.Duration(getInt64(m, "recurperiod")) * time.Second
	e.Recur.Count = int32(getInt64(m, "recurcount"))

	nmasks := int(getInt64(m, "nmasks"))
	for i := 0; i < nmasks; i++ {
		p := fmt.Sprintf("mask%d.", i)
		d := recurrence.Descriptor{
			Special:        recurrence.Special(getInt64(m, p+"special")),
			LastDayOfMonth: getBool(m, p+"lastday"),
		}
		d.Schedule.Minute = uint64(getInt64(m, p+"minute"))
		d.Schedule.Hour = uint64(getInt64(m, p+"hour"))
		d.Schedule.Dom = uint64(getInt64(m, p+"dom"))
		d.Schedule.Month = uint64(getInt64(m, p+"month"))
		d.Schedule.Dow = uint64(getInt64(m, p+"dow"))
		e.Recur.Masks = append(e.Recur.Masks, d)
	}

	nactions := int(getInt64(m, "nactions"))
	for i := 0; i < nactions; i++ {
		p := fmt.Sprintf("action%d.", i)
		a := queue.Action{
			When:           queue.ActionWhen(getInt64(m, p+"when")),
			Type:           queue.ActionType(getInt64(m, p+"type")),
			Label:          m[p+"label"],
			ExecCmd:        m[p+"execcmd"],
			ExecAppendID:   getBool(m, p+"execappendid"),
			MsgInterface:   m[p+"msgiface"],
			MsgPath:        m[p+"msgpath"],
			MsgMember:      m[p+"msgmember"],
			MsgDestination: m[p+"msgdest"],
			MsgAutoStart:   getBool(m, p+"msgautostart"),
			MsgSystemBus:   getBool(m, p+"msgsystembus"),
			MsgAppendID:    getBool(m, p+"msgappendid"),
		}
		e.Actions = append(e.Actions, a)
	}

	switch e.State {
	case state.Triggered, state.WaitSysUI, state.SysUIReq, state.SysUIAck, state.SysUIRsp:
		e.State = state.Limbo
	}
	return e
}

// decodeSpec rebuilds the time specification (§3) persisted by Encode: an
// absolute instant, or a broken-down time plus the zone name it floats
// against ("" means the event floats with the active zone, i.e. Zone is
// left nil).
func decodeSpec(m map[string]string) queue.TimeSpec {
	var ts queue.TimeSpec
	ts.HasAbsolute = getBool(m, "spechasabs")
	if ts.HasAbsolute {
		ts.Absolute = time.Unix(getInt64(m, "specabs"), 0)
	}
	ts.BrokenDown.Year = int(getInt64(m, "specyear"))
	ts.BrokenDown.Month = time.Month(getInt64(m, "specmonth"))
	ts.BrokenDown.Day = int(getInt64(m, "specday"))
	ts.BrokenDown.Hour = int(getInt64(m, "spechour"))
	ts.BrokenDown.Minute = int(getInt64(m, "specminute"))
	ts.BrokenDown.Second = int(getInt64(m, "specsecond"))
	ts.BrokenDown.DSTHint = int(getInt64(m, "specdst"))
	if name, ok := m["speczone"]; ok && name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			ts.Zone = loc
		}
	}
	return ts
}

// decodeUserAttrs rebuilds the free-form attribute map written by
// writeUserAttrs, restoring each value's original int64/time.Time/string
// kind from its persisted type tag.
func decodeUserAttrs(m map[string]string) queue.Attrs {
	n := int(getInt64(m, "nuserattrs"))
	if n == 0 {
		return nil
	}
	attrs := make(queue.Attrs, n)
	for i := 0; i < n; i++ {
		p := fmt.Sprintf("userattr%d.", i)
		name, ok := m[p+"name"]
		if !ok {
			continue
		}
		switch m[p+"type"] {
		case attrTypeTime:
			attrs[name] = time.Unix(getInt64(m, p+"value"), 0)
		case attrTypeString:
			attrs[name] = m[p+"value"]
		default:
			attrs[name] = getInt64(m, p+"value")
		}
	}
	return attrs
}

func parseState(s string) state.State {
	names := map[string]state.State{
		"NEW": state.New, "WAITCONN": state.WaitConn, "QUEUED": state.Queued,
		"MISSED": state.Missed, "LIMBO": state.Limbo, "POSTPONED": state.Postponed,
		"TRIGGERED": state.Triggered, "WAITSYSUI": state.WaitSysUI,
		"SYSUI_REQ": state.SysUIReq, "SYSUI_ACK": state.SysUIAck, "SYSUI_RSP": state.SysUIRsp,
		"SNOOZED": state.Snoozed, "SERVED": state.Served, "RECURRING": state.Recurring,
		"DELETED": state.Deleted, "FINALIZED": state.Finalized,
	}
	if s, ok := names[s]; ok {
		return s
	}
	return state.New
}
