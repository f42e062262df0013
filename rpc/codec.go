// codec.go marshals queue.Event to and from the dbus wire shapes used by
// the §6.1 methods. Field names/order for the "flat" event fields
// (title/message/sound/icon/flags/alarm_*/recur_secs/recur_count/
// snooze_secs) are taken from original_source/src/alarm_dbus.h; the
// recurrence-mask list is a separate trailing argument, mirroring
// original_source/src/codec.h's encode_recur/decode_recur (masks are not
// part of the flat struct documented in alarm_dbus.h, but the original
// does marshal them, via its own encode/decode pair).
package rpc

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maemo-leste/alarmd/clock"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/recurrence"
)

// ActionWire is the dbus struct shape for one action descriptor, field
// order taken from alarm_dbus.h's "action : ARRAY of STRUCT" documentation.
type ActionWire struct {
	Flags   uint32 // When<<16 | Type, see flagsToWire/wireToFlags
	Label   string
	Exec    string
	Iface   string
	Service string
	Path    string
	Member  string
	Args    []byte
}

// RecurWire is the dbus struct shape for one recurrence mask, field names
// matching alarm_recur_t (original_source/src/libalarm.h).
type RecurWire struct {
	MaskMin   uint64
	MaskHour  uint32
	MaskMday  uint32
	LastDay   bool
	MaskWday  uint32
	MaskMon   uint32
	Special   uint32 // 0 none, 1 biweekly, 2 monthly, 3 yearly
}

func specialToWire(s recurrence.Special) uint32 {
	switch s {
	case recurrence.SpecialBiweekly:
		return 1
	case recurrence.SpecialMonthly:
		return 2
	case recurrence.SpecialYearly:
		return 3
	default:
		return 0
	}
}

func wireToSpecial(n uint32) recurrence.Special {
	switch n {
	case 1:
		return recurrence.SpecialBiweekly
	case 2:
		return recurrence.SpecialMonthly
	case 3:
		return recurrence.SpecialYearly
	default:
		return recurrence.SpecialNone
	}
}

func descriptorToWire(d recurrence.Descriptor) RecurWire {
	return RecurWire{
		MaskMin:  d.Schedule.Minute,
		MaskHour: uint32(d.Schedule.Hour),
		MaskMday: uint32(d.Schedule.Dom),
		LastDay:  d.LastDayOfMonth,
		MaskWday: uint32(d.Schedule.Dow),
		MaskMon:  uint32(d.Schedule.Month),
		Special:  specialToWire(d.Special),
	}
}

func wireToDescriptor(w RecurWire) recurrence.Descriptor {
	return recurrence.Descriptor{
		Schedule: cron.SpecSchedule{
			Minute: w.MaskMin,
			Hour:   uint64(w.MaskHour),
			Dom:    uint64(w.MaskMday),
			Month:  uint64(w.MaskMon),
			Dow:    uint64(w.MaskWday),
		},
		LastDayOfMonth: w.LastDay,
		Special:        wireToSpecial(w.Special),
	}
}

const (
	actionWhenShift = 16
)

func actionToWire(a queue.Action) ActionWire {
	return ActionWire{
		Flags:   uint32(a.When)<<actionWhenShift | uint32(a.Type),
		Label:   a.Label,
		Exec:    a.ExecCmd,
		Iface:   a.MsgInterface,
		Service: a.MsgDestination,
		Path:    a.MsgPath,
		Member:  a.MsgMember,
		Args:    a.MsgArgs,
	}
}

func wireToAction(w ActionWire) queue.Action {
	return queue.Action{
		When:           queue.ActionWhen(w.Flags >> actionWhenShift),
		Type:           queue.ActionType(w.Flags & (1<<actionWhenShift - 1)),
		Label:          w.Label,
		ExecCmd:        w.Exec,
		ExecAppendID:   w.Exec != "",
		MsgInterface:   w.Iface,
		MsgDestination: w.Service,
		MsgPath:        w.Path,
		MsgMember:      w.Member,
		MsgArgs:        w.Args,
		MsgAppendID:    len(w.Args) > 0,
	}
}

// EventWire is the flat add_event/get_event/update_event wire shape, field
// order taken from alarm_dbus.h.
type EventWire struct {
	Cookie      int32
	Trigger     int32
	Title       string
	Message     string
	Sound       string
	Icon        string
	Flags       uint32
	AlarmTime   int32
	AlarmYear   int32
	AlarmMon    int32
	AlarmMday   int32
	AlarmHour   int32
	AlarmMin    int32
	AlarmSec    int32
	AlarmTZ     string
	RecurSecs   int32
	RecurCount  int32
	SnoozeSecs  int32
	SnoozeTotal int32
	App         string
	Actions     []ActionWire
	Recur       []RecurWire
}

// DecodeEvent converts an EventWire (plus the server's notion of "now", for
// resolving the deprecated alarm_time seconds-from-now cutoff) into a
// queue.Event ready for core.Engine.Add/Update.
func DecodeEvent(w EventWire, now time.Time) *queue.Event {
	ev := &queue.Event{
		ID:            int64(w.Cookie),
		Flags:         queue.Flags(w.Flags),
		SnoozeSeconds: w.SnoozeSecs,
		App:           w.App,
		Title:         w.Title,
		Message:       w.Message,
		SoundPath:     w.Sound,
		IconPath:      w.Icon,
		Response:      -1,
	}

	if w.AlarmTZ == "" && w.AlarmYear == 0 && w.AlarmMon == 0 && w.AlarmMday == 0 {
		ev.Spec = queue.TimeSpec{
			HasAbsolute: true,
			Absolute:    queue.ResolveAbsoluteInstant(int64(w.AlarmTime), now),
		}
	} else {
		var loc *time.Location
		if w.AlarmTZ != "" {
			if l, err := time.LoadLocation(w.AlarmTZ); err == nil {
				loc = l
			}
		}
		ev.Spec = queue.TimeSpec{
			BrokenDown: clock.BrokenDown{
				Year:   int(w.AlarmYear),
				Month:  time.Month(w.AlarmMon + 1),
				Day:    int(w.AlarmMday),
				Hour:   int(w.AlarmHour),
				Minute: int(w.AlarmMin),
				Second: int(w.AlarmSec),
			},
			Zone: loc,
		}
	}

	if w.RecurSecs != 0 || w.RecurCount != 0 {
		ev.Recur.Period = time.Duration(w.RecurSecs) * time.Second
		ev.Recur.Count = w.RecurCount
	}
	for _, r := range w.Recur {
		ev.Recur.Masks = append(ev.Recur.Masks, wireToDescriptor(r))
	}

	for _, a := range w.Actions {
		ev.Actions = append(ev.Actions, wireToAction(a))
	}
	return ev
}

// EncodeEvent converts a queue.Event into its wire shape for get_event's
// response.
func EncodeEvent(ev *queue.Event) EventWire {
	w := EventWire{
		Cookie:      int32(ev.ID),
		Trigger:     int32(ev.Trigger.Unix()),
		Title:       ev.Title,
		Message:     ev.Message,
		Sound:       ev.SoundPath,
		Icon:        ev.IconPath,
		Flags:       uint32(ev.Flags),
		SnoozeSecs:  ev.SnoozeSeconds,
		App:         ev.App,
		RecurCount:  ev.Recur.Count,
		RecurSecs:   int32(ev.Recur.Period / time.Second),
	}
	if ev.Spec.HasAbsolute {
		w.AlarmTime = int32(ev.Spec.Absolute.Unix())
	} else {
		bd := ev.Spec.BrokenDown
		w.AlarmYear, w.AlarmMon, w.AlarmMday = int32(bd.Year), int32(bd.Month)-1, int32(bd.Day)
		w.AlarmHour, w.AlarmMin, w.AlarmSec = int32(bd.Hour), int32(bd.Minute), int32(bd.Second)
		if ev.Spec.Zone != nil {
			w.AlarmTZ = ev.Spec.Zone.String()
		}
	}
	for _, r := range ev.Recur.Masks {
		w.Recur = append(w.Recur, descriptorToWire(r))
	}
	for _, a := range ev.Actions {
		w.Actions = append(w.Actions, actionToWire(a))
	}
	return w
}
